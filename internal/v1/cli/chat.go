package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parlorchat/parlor/pkg/roomclient"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join a room from the terminal",
	Long:  `Connect to a relay room and chat interactively. Lines from stdin are sent as messages; /name <new name> renames you, /who lists the room, /quit leaves.`,
	RunE:  runChat,
}

var (
	chatServer string
	chatRoom   string
	chatName   string
	chatPid    string
	chatCache  string
)

func init() {
	chatCmd.Flags().StringVarP(&chatServer, "server", "s", "http://localhost:8080", "Relay server base URL")
	chatCmd.Flags().StringVarP(&chatRoom, "room", "r", "lobby", "Room to join")
	chatCmd.Flags().StringVarP(&chatName, "name", "n", "", "Display name")
	chatCmd.Flags().StringVar(&chatPid, "pid", "", "Stable participant id (keeps identity across sessions)")
	chatCmd.Flags().StringVar(&chatCache, "cache", "", "Path for a local transcript cache")
}

func runChat(cmd *cobra.Command, args []string) error {
	fmt.Printf("Connecting to %s, room %q...\n", chatServer, chatRoom)

	opts := []roomclient.Option{
		roomclient.WithDisplayName(chatName),
		roomclient.WithParticipantID(chatPid),
		roomclient.OnMessage(func(m roomclient.Message) {
			printIncoming(m)
		}),
		roomclient.OnUpdate(func(m roomclient.Message) {
			fmt.Printf("\r[%s] %s (edited): %s\n> ", formatTs(m.Ts), m.User, m.Content)
		}),
		roomclient.OnPresence(func(p roomclient.Participant) {
			fmt.Printf("\r* %s is %s\n> ", p.User, p.Status)
		}),
		roomclient.OnError(func(err error) {
			fmt.Printf("\r! %v\n> ", err)
		}),
	}
	if chatCache != "" {
		opts = append(opts, roomclient.WithCachePath(chatCache))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := roomclient.Dial(ctx, chatServer, chatRoom, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Close()

	fmt.Printf("Connected as %s (id %s). Type a message, /who, /name <name>, or /quit.\n",
		client.DisplayName(), client.ParticipantID())

	// Replay whatever the cache held before the server history arrives.
	for _, m := range client.Messages() {
		printIncoming(m)
	}

	// Leave cleanly on Ctrl+C too.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-interrupt
		fmt.Println("\nLeaving room...")
		_ = client.Close()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return nil
		case line == "/who":
			for _, p := range client.Participants() {
				fmt.Printf("  %-20s %s (last seen %s)\n", p.User, p.Status, formatTs(p.LastSeen))
			}
		case strings.HasPrefix(line, "/name "):
			newName := strings.TrimSpace(strings.TrimPrefix(line, "/name "))
			if newName != "" {
				client.SetDisplayName(newName)
				fmt.Printf("You are now %s\n", newName)
			}
		default:
			client.Send(line)
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

func printIncoming(m roomclient.Message) {
	fmt.Printf("\r[%s] %s: %s\n> ", formatTs(m.Ts), m.User, m.Content)
}

func formatTs(ms int64) string {
	if ms == 0 {
		return "--:--:--"
	}
	return time.UnixMilli(ms).Local().Format("15:04:05")
}
