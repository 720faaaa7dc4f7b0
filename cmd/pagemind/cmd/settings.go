package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagemind/internal/config"
	"github.com/Aman-CERP/pagemind/internal/daemon"
	"github.com/Aman-CERP/pagemind/internal/output"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the Azure OpenAI settings",
		Long: `Azure OpenAI settings are stored in <data_dir>/settings.yaml and read
before every analysis run and question. Values from the config file and
PAGEMIND_* environment variables fill any field left empty there.`,
	}
	cmd.AddCommand(newSettingsShowCmd())
	cmd.AddCommand(newSettingsSetCmd())
	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current settings with the API key redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := connect(appOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			var reply daemon.SettingsReply
			if err := sess.call(cmd.Context(), daemon.MethodGetSettings, nil, &reply); err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(reply)
			}
			printSettings(out, reply)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// settingFlags maps each flag to its wire field name.
var settingFlags = []struct {
	flag  string
	field string
	usage string
	isInt bool
}{
	{"endpoint", "endpoint", "Azure OpenAI resource endpoint, https://<name>.openai.azure.com", false},
	{"api-key", "apiKey", "API key (prefer --api-key-stdin)", false},
	{"chat-deployment", "chatDeployment", "Chat model deployment name", false},
	{"embedding-deployment", "embeddingDeployment", "Embedding model deployment name", false},
	{"api-version", "apiVersion", "REST API version", false},
	{"max-chars", "maxCharsPerPage", fmt.Sprintf("Page text sent for summarizing (minimum %d)", config.MinCharsPerPage), true},
	{"max-concurrency", "maxConcurrency", fmt.Sprintf("Analysis workers (%d-%d)", config.MinConcurrency, config.MaxConcurrency), true},
}

func newSettingsSetCmd() *cobra.Command {
	var (
		strValues = map[string]*string{}
		intValues = map[string]*int{}
		keyStdin  bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change one or more settings",
		Long: `Only the flags given are changed; other settings keep their saved
values. Passing the redacted key "****" keeps the saved key.`,
		Example: `  pagemind settings set --endpoint https://me.openai.azure.com \
    --chat-deployment gpt-4o-mini --embedding-deployment text-embedding-3-small
  echo "$AZURE_KEY" | pagemind settings set --api-key-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			patch := map[string]any{}
			for _, f := range settingFlags {
				if !cmd.Flags().Changed(f.flag) {
					continue
				}
				if f.isInt {
					patch[f.field] = *intValues[f.flag]
				} else {
					patch[f.field] = strings.TrimSpace(*strValues[f.flag])
				}
			}
			if keyStdin {
				key, err := readSecret(cmd.InOrStdin())
				if err != nil {
					return err
				}
				patch["apiKey"] = key
			}
			if len(patch) == 0 {
				return errors.New("no settings given; see 'pagemind settings set --help'")
			}

			sess, err := connect(appOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			var reply daemon.SettingsReply
			if err := sess.call(cmd.Context(), daemon.MethodSaveSettings, patch, &reply); err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			out.Successf("Settings saved")
			printSettings(out, reply)
			return nil
		},
	}

	for _, f := range settingFlags {
		if f.isInt {
			intValues[f.flag] = cmd.Flags().Int(f.flag, 0, f.usage)
		} else {
			strValues[f.flag] = cmd.Flags().String(f.flag, "", f.usage)
		}
	}
	cmd.Flags().BoolVar(&keyStdin, "api-key-stdin", false, "Read the API key from the first line of stdin")
	cmd.MarkFlagsMutuallyExclusive("api-key", "api-key-stdin")

	return cmd
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", errors.New("no API key on stdin")
	}
	return key, nil
}

func printSettings(out *output.Writer, reply daemon.SettingsReply) {
	s := reply.Settings
	show := func(v string) string {
		if v == "" {
			return "(not set)"
		}
		return v
	}
	out.KeyValues(
		output.KV{Key: "Endpoint", Value: show(s.Endpoint)},
		output.KV{Key: "API key", Value: show(s.APIKey)},
		output.KV{Key: "Chat deployment", Value: show(s.ChatDeployment)},
		output.KV{Key: "Embedding deployment", Value: show(s.EmbeddingDeployment)},
		output.KV{Key: "API version", Value: show(s.APIVersion)},
		output.KV{Key: "Max chars per page", Value: s.MaxCharsPerPage},
		output.KV{Key: "Max concurrency", Value: s.MaxConcurrency},
	)
	if len(reply.Missing) > 0 {
		out.Newline()
		out.Warningf("Missing: %s", joinOr(reply.Missing, "none"))
	}
}
