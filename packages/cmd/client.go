package cmd

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/spf13/cobra"
)

var clientAddr string

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Interactive line client",
	Long: `Connect to a sheetd server over TCP and send one command per input
line. replies are printed as they arrive; set commands have no reply.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := net.Dial("tcp", clientAddr)
		if err != nil {
			return fmt.Errorf("connect %s: %w", clientAddr, err)
		}
		defer conn.Close()
		return runClient(conn, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	clientCmd.Flags().StringVar(&clientAddr, "addr", "127.0.0.1:5050", "server address")
	rootCmd.AddCommand(clientCmd)
}

// runClient copies lines from in to conn and replies from conn to out until
// in ends or the server hangs up
func runClient(conn net.Conn, in io.Reader, out io.Writer) error {
	replies := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			fmt.Fprintln(out, scanner.Text())
		}
		replies <- scanner.Err()
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if _, err := io.WriteString(conn, line+"\n"); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	// stop sending and wait for outstanding replies
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err == nil {
			return <-replies
		}
	}
	return nil
}
