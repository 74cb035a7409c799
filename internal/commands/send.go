package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/formrelay/internal/relay"
)

var sendCmd = &cobra.Command{
	Use:   "send [body]",
	Short: "Relay one urlencoded body to the collector",
	Long: `Send a single datagram to the collector exactly as the front-end would,
without going through HTTP. Reads the body from stdin when no argument is given.`,
	Example: `  formrelay send 'username=alice&message=hi+there'
  echo -n 'username=bob' | formrelay send`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body []byte
		if len(args) == 1 {
			body = []byte(args[0])
		} else {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			body = data
		}
		if len(body) == 0 {
			return fmt.Errorf("nothing to send")
		}

		target, _ := cmd.Flags().GetString("target")
		if target == "" {
			target = cfg.Relay.Target
		}

		if err := relay.NewSender(target, cfg.Relay.WriteTimeout).Forward(cmd.Context(), body); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %d bytes to %s\n", len(body), target)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().String("target", "", "collector address (default: relay.target)")
}
