package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/portfolia/console/pkg/chat"
	"github.com/portfolia/console/pkg/store"
)

func newLoginCmd(flags *rootFlags) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange admin credentials for a session token",
		Long: `Logs in against the backend and stores the bearer token in the state
directory so later commands and the interactive interface run as admin.

The password is read from standard input when --password is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			in := bufio.NewReader(cmd.InOrStdin())
			if username == "" {
				if username, err = prompt(cmd.OutOrStdout(), in, "Username: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = promptPassword(cmd.OutOrStdout(), cmd.InOrStdin(), in); err != nil {
					return err
				}
			}

			if err := a.session.Login(cmd.Context(), username, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as admin\n", a.cfg.APIBaseURL)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "admin username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "admin password")
	return cmd
}

func newLogoutCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			a.session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current access level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "%s @ %s\n", a.session.Access(), a.cfg.APIBaseURL)
			return nil
		},
	}
}

func newChatCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask the assistant a question",
		Long: `Sends a single message and prints the reply. Without arguments, reads one
message per line from standard input and keeps the conversation going until
end of input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			sess := a.newChat(false)
			out := cmd.OutOrStdout()

			if len(args) > 0 {
				return ask(cmd, sess, strings.Join(args, " "), out)
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if err := ask(cmd, sess, line, out); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}
}

// ask sends text and prints the assistant turn it produced.
func ask(cmd *cobra.Command, sess *chat.Session, text string, out io.Writer) error {
	before := len(sess.Turns())
	if !sess.Trigger(cmd.Context(), text) {
		return errors.New("message not sent")
	}
	turns := sess.Turns()
	for _, t := range turns[before:] {
		if t.Role != chat.RoleAssistant {
			continue
		}
		fmt.Fprintln(out, t.Content)
		if t.Tool != "" {
			fmt.Fprintf(out, "[%s]\n", t.Tool)
		}
		for _, s := range t.Sources {
			fmt.Fprintf(out, "  source: %s\n", s.Source)
		}
	}
	return nil
}

func newUploadCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Add documents to the knowledge base (admin)",
		Long:  "Uploads PDF, TXT or MD files one at a time. Stops at the first failure.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range args {
				res, err := a.console.Upload(cmd.Context(), path)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Status())
			}
			return nil
		},
	}
}

func newResetCmd(flags *rootFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every document from the knowledge base (admin)",
		Long: `Irreversibly clears the knowledge base. Asks for confirmation unless --yes
is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.console.ArmReset(); err != nil {
				return err
			}
			if !yes {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "This will permanently delete all documents from the knowledge base.")
				answer, err := prompt(out, bufio.NewReader(cmd.InOrStdin()), "Type 'yes' to continue: ")
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				if !strings.EqualFold(answer, "yes") {
					a.console.CancelReset()
					fmt.Fprintln(out, "Reset cancelled")
					return nil
				}
			}

			status, err := a.console.ConfirmReset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base statistics (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.console.Stats(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}

func newTranscriptsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcripts",
		Short: "List recorded conversations",
		Long:  "Conversations are recorded when PORTFOLIA_TRANSCRIPTS=true.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			infos, err := a.transcripts.ListTranscripts()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTURNS\tMODIFIED\tBACKEND")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", info.ID, info.TurnCount, info.Modified.Format(time.RFC822), info.BaseURL)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a recorded conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			tr, err := a.transcripts.LoadTranscript(args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no transcript %q", args[0])
			}
			if err != nil {
				return err
			}
			defer tr.Close()

			entries, err := tr.Entries()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				if e.Turn == nil {
					continue
				}
				fmt.Fprintf(out, "%s: %s\n", e.Turn.Role, e.Turn.Content)
			}
			return nil
		},
	})
	return cmd
}

func prompt(out io.Writer, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return line, err
	}
	return line, nil
}

// promptPassword reads the password without echo when src is a terminal.
func promptPassword(out io.Writer, src io.Reader, in *bufio.Reader) (string, error) {
	f, ok := src.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return prompt(out, in, "Password: ")
	}
	fmt.Fprint(out, "Password: ")
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
