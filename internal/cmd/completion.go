package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// completionCmd generates shell completions
var completionCmd = &cobra.Command{
	Use:   "completion [shell]",
	Short: "Generate shell completions",
	Long: `Generate shell completion scripts.

Bash:
  source <(postie completion bash)

Zsh:
  postie completion zsh > "${fpath[1]}/_postie"

Fish:
  postie completion fish | source

PowerShell:
  postie completion powershell | Out-String | Invoke-Expression

Use "postie completion install [shell]" to write the script to the usual
per-user location instead.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		return genCompletion(cmd.Root(), args[0], cmd.OutOrStdout())
	},
}

// completionInstallCmd installs shell completions
var completionInstallCmd = &cobra.Command{
	Use:       "install [shell]",
	Short:     "Install shell completions for the current user",
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := completionPath(args[0])
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create completion directory: %w", err)
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to write completion file: %w", err)
		}
		defer f.Close()

		if err := genCompletion(cmd.Root(), args[0], f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Completion script installed to: %s\n", path)
		return nil
	},
}

func init() {
	completionCmd.AddCommand(completionInstallCmd)
	rootCmd.AddCommand(completionCmd)
}

func genCompletion(root *cobra.Command, shell string, w io.Writer) error {
	switch shell {
	case "bash":
		return root.GenBashCompletionV2(w, true)
	case "zsh":
		return root.GenZshCompletion(w)
	case "fish":
		return root.GenFishCompletion(w, true)
	case "powershell":
		return root.GenPowerShellCompletionWithDesc(w)
	}
	return fmt.Errorf("unsupported shell: %s", shell)
}

func completionPath(shell string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch shell {
	case "bash":
		return filepath.Join(home, ".local/share/bash-completion/completions/postie"), nil
	case "zsh":
		return filepath.Join(home, ".zsh/completions/_postie"), nil
	case "fish":
		return filepath.Join(home, ".config/fish/completions/postie.fish"), nil
	case "powershell":
		return filepath.Join(home, ".config/powershell/postie.ps1"), nil
	}
	return "", fmt.Errorf("unsupported shell: %s", shell)
}
