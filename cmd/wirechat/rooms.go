package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/app"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/roomlist"
)

func init() {
	roomsCmd.Flags().Bool("unread", false, "only list rooms with unread messages")
	roomsCmd.Flags().String("search", "", "filter rooms by name or last message")
	rootCmd.AddCommand(roomsCmd, joinCmd, cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd, cacheListCmd)
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the rooms you belong to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		unread, _ := cmd.Flags().GetBool("unread")
		term, _ := cmd.Flags().GetString("search")

		c, err := startApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer c.stop()

		ctrl := c.app.Controller()
		if err := ctrl.RefreshRooms(cmd.Context()); err != nil {
			return err
		}

		rooms := ctrl.Rooms(roomlist.Filter{UnreadOnly: unread, Term: term})
		if len(rooms) == 0 {
			fmt.Println("no rooms")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\t\tLAST MESSAGE\tUPDATED")
		for _, r := range rooms {
			mark := ""
			if r.Unread {
				mark = "*"
			}
			updated := ""
			if !r.UpdatedAt.IsZero() {
				updated = humanize.Time(r.UpdatedAt)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, mark, r.LastMessage, updated)
		}
		return w.Flush()
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room through its invite link id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := args[0]
		c, err := startApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer c.stop()

		ctrl := c.app.Controller()
		if err := ctrl.JoinViaLink(cmd.Context(), roomID); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev := <-ctrl.Events():
				if ev.Room != roomID {
					continue
				}
				switch {
				case ev.Kind == core.EventWaitingApproval:
					fmt.Printf("join request for %s is waiting for approval\n", roomID)
					return nil
				case ev.Kind == core.EventRoomState && ev.State == core.StateLoaded:
					fmt.Printf("you are a member of %s\n", roomID)
					return nil
				case ev.Kind == core.EventRedirect:
					return errors.New(core.UserMessage(ev.Error))
				}
			}
		}
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the local message cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear <room-id>",
	Short: "Drop the cached messages of a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cache, err := app.OpenCache(cfg.Cache)
		if err != nil {
			return err
		}
		defer cache.Close()

		if err := cache.Clear(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("cleared %s\n", args[0])
		return nil
	},
}

// roomLister is implemented by the persistent cache drivers.
type roomLister interface {
	Rooms(ctx context.Context) ([]string, error)
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rooms with cached messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cache, err := app.OpenCache(cfg.Cache)
		if err != nil {
			return err
		}
		defer cache.Close()

		lister, ok := cache.(roomLister)
		if !ok {
			fmt.Printf("cache driver %q keeps nothing\n", cfg.Cache.Driver)
			return nil
		}
		rooms, err := lister.Rooms(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range rooms {
			msgs, err := cache.Load(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s messages\n", id, humanize.Comma(int64(len(msgs))))
		}
		return nil
	},
}
