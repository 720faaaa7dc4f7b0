package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagemind/internal/daemon"
	"github.com/Aman-CERP/pagemind/internal/output"
)

func newResetCmd() *cobra.Command {
	var (
		requeue    bool
		restricted bool
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Retry failed records, or delete the whole knowledge base",
		Long: `With --requeue-failed, move failed records back to pending so the next
analysis retries them; add --restricted to retry restricted pages too.

Without flags, delete every record and analysis. This needs the daemon
to be stopped and asks for confirmation unless --yes is given.`,
		Example: `  pagemind reset --requeue-failed
  pagemind reset --requeue-failed --restricted
  pagemind reset --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			if restricted && !requeue {
				return errors.New("--restricted needs --requeue-failed")
			}

			sess, err := connect(appOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			if requeue {
				var reply daemon.RequeueReply
				if err := sess.call(cmd.Context(), daemon.MethodRequeue, daemon.RequeueParams{Restricted: restricted}, &reply); err != nil {
					return err
				}
				out.Successf("%d records back to pending", reply.Requeued)
				if reply.Requeued > 0 {
					out.Status("", "Run 'pagemind analyze' to retry them.")
				}
				return nil
			}

			if sess.remote {
				return errors.New("the daemon is running; stop it with 'pagemind daemon stop' before a full reset")
			}
			if !yes {
				ok, err := confirm(cmd, fmt.Sprintf("Delete every record and analysis in %s? [y/N] ", sess.cfg.DatabasePath()))
				if err != nil {
					return err
				}
				if !ok {
					out.Status("", "Aborted.")
					return nil
				}
			}
			if err := sess.app.svc.Reset(cmd.Context()); err != nil {
				return err
			}
			out.Successf("Knowledge base cleared")
			return nil
		},
	}

	cmd.Flags().BoolVar(&requeue, "requeue-failed", false, "Move failed records back to pending")
	cmd.Flags().BoolVar(&restricted, "restricted", false, "With --requeue-failed, include restricted records")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	_, _ = fmt.Fprint(cmd.OutOrStdout(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
