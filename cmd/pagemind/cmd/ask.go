package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagemind/internal/daemon"
	"github.com/Aman-CERP/pagemind/internal/llm"
	"github.com/Aman-CERP/pagemind/internal/mcp"
	"github.com/Aman-CERP/pagemind/internal/output"
	"github.com/Aman-CERP/pagemind/internal/service"
)

func newAskCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from your analyzed pages",
		Long: `Embed the question, rank the analyzed pages by similarity and ask the
chat deployment to answer using only the best matches. The answer cites
the pages it used.`,
		Example: `  pagemind ask "which articles compared vector databases?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := connect(appOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			var res llm.AnswerResult
			params := daemon.AskParams{Question: strings.Join(args, " ")}
			if err := sess.call(cmd.Context(), daemon.MethodAskQuery, params, &res); err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(res)
			}
			out.Text(mcp.FormatAnswer(mcp.AskOutput{
				Answer:      res.Answer,
				MatchedURLs: res.MatchedURLs,
				RelatedURLs: res.RelatedURLs,
				Confidence:  res.Confidence,
			}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		topK       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "List the analyzed pages most similar to a query",
		Long: `Rank analyzed pages by embedding similarity without asking the chat
model. An empty result is not an error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := connect(appOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			query := strings.Join(args, " ")
			var hits []service.Hit
			if err := sess.call(cmd.Context(), daemon.MethodSearch, daemon.SearchParams{Query: query, TopK: topK}, &hits); err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				if hits == nil {
					hits = []service.Hit{}
				}
				return out.JSON(hits)
			}
			out.Text(mcp.FormatSearchResults(query, hits))
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
