package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/roomsync"
)

const chatHelp = `Type a message and press Enter to send. Commands:
  /more                 load older messages
  /reply <id> <text>    reply to a message
  /edit <id> <text>     edit one of your messages
  /delete <id>          delete one of your messages
  /attach <path> [text] send a file
  /search <term>        search this room
  /retry                retry a failed load
  /quit                 leave`

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat <room-id>",
	Short: "Open a room and chat interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := startApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer c.stop()

		ctrl := c.app.Controller()
		if err := ctrl.SwitchRoom(args[0]); err != nil {
			return err
		}
		fmt.Println(chatHelp)

		v := &chatView{ctrl: ctrl, room: args[0], self: c.app.Session().CurrentUser().ID, shown: make(map[string]string)}
		return v.loop(ctx)
	},
}

// chatView prints one room to the terminal.
type chatView struct {
	ctrl  *roomsync.Controller
	room  string
	self  string
	shown map[string]string
}

func (v *chatView) loop(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-v.ctrl.Events():
			if err := v.render(ev); err != nil {
				return err
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := v.handle(ctx, strings.TrimSpace(line))
			if err != nil {
				fmt.Printf("! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func (v *chatView) render(ev core.Event) error {
	switch ev.Kind {
	case core.EventMessagesChanged:
		if ev.Room == v.room {
			v.printNew("")
		}
	case core.EventPagePrepended:
		if ev.Room == v.room {
			v.printNew("older")
		}
	case core.EventRoomState:
		if ev.Room == v.room && ev.State == core.StateError {
			fmt.Println("! loading failed, type /retry")
		}
	case core.EventNotice:
		fmt.Printf("* %s\n", ev.Notice)
	case core.EventTyping:
		if ev.Room == v.room && len(ev.Typing) > 0 {
			fmt.Printf("* %s typing...\n", strings.Join(ev.Typing, ", "))
		}
	case core.EventConnectivity:
		if ev.Online {
			fmt.Println("* online")
		} else {
			fmt.Println("* offline, showing cached messages")
		}
	case core.EventWaitingApproval:
		if ev.Room == v.room {
			fmt.Println("* waiting for the admin to approve your join request")
		}
	case core.EventJoinRequired:
		if ev.Room == v.room {
			fmt.Println("* you are not a member, use `wirechat join` to request access")
		}
	case core.EventRedirect:
		if ev.Room == v.room {
			return errors.New("room is no longer available")
		}
	case core.EventLoggedOut:
		return errors.New("logged out")
	}
	return nil
}

// printNew prints messages not printed yet and reports edits and deletions.
func (v *chatView) printNew(label string) {
	msgs := v.ctrl.Messages(v.room)
	seen := make(map[string]bool, len(msgs))
	header := false
	for _, m := range msgs {
		if m.IsProvisional() {
			continue
		}
		seen[m.ID] = true
		prev, ok := v.shown[m.ID]
		switch {
		case !ok:
			if label != "" && !header {
				fmt.Printf("--- %s messages ---\n", label)
				header = true
			}
			fmt.Println(v.format(m))
		case prev != m.Content:
			fmt.Printf("%s (edited)\n", v.format(m))
		}
		v.shown[m.ID] = m.Content
	}
	for id := range v.shown {
		if !seen[id] {
			fmt.Printf("[%s deleted]\n", id)
			delete(v.shown, id)
		}
	}
}

func (v *chatView) format(m core.Message) string {
	name := m.Sender.Name
	if m.CreatedBy == v.self {
		name = "you"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s:", m.ID, humanize.Time(m.CreatedAt), name)
	if m.ReplyTo != nil {
		fmt.Fprintf(&b, " (re %s: %q)", m.ReplyTo.Sender.Name, m.ReplyTo.Preview())
	}
	if m.Content != "" {
		b.WriteString(" " + m.Content)
	}
	if m.Attachment != nil {
		fmt.Fprintf(&b, " <%s %s>", m.Attachment.Name, m.Attachment.URL)
	}
	return b.String()
}

func (v *chatView) handle(ctx context.Context, line string) (quit bool, err error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		if err := v.ctrl.Typing(ctx, line); err != nil {
			return false, err
		}
		return false, v.ctrl.SendMessage(ctx, line, nil)
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "/quit", "/q":
		return true, nil
	case "/more":
		err := v.ctrl.LoadMore(ctx)
		if errors.Is(err, core.ErrNoMoreHistory) {
			fmt.Println("* start of history")
			return false, nil
		}
		return false, err
	case "/retry":
		return false, v.ctrl.Retry(ctx)
	case "/reply":
		id, text, _ := strings.Cut(rest, " ")
		quoted, ok := v.find(id)
		if !ok {
			return false, fmt.Errorf("no message %s", id)
		}
		return false, v.ctrl.SendMessage(ctx, text, &quoted)
	case "/edit":
		id, text, _ := strings.Cut(rest, " ")
		return false, v.ctrl.EditMessage(ctx, id, text)
	case "/delete":
		return false, v.ctrl.DeleteMessage(ctx, rest)
	case "/attach":
		path, caption, _ := strings.Cut(rest, " ")
		f, err := os.Open(path)
		if err != nil {
			return false, err
		}
		defer f.Close()
		return false, v.ctrl.SendAttachment(ctx, filepath.Base(path), f, caption)
	case "/search":
		for _, m := range v.ctrl.Search(rest) {
			fmt.Println(v.format(m))
		}
		return false, nil
	default:
		fmt.Println(chatHelp)
		return false, nil
	}
}

func (v *chatView) find(id string) (core.Message, bool) {
	for _, m := range v.ctrl.Messages(v.room) {
		if m.ID == id {
			return m, true
		}
	}
	return core.Message{}, false
}
