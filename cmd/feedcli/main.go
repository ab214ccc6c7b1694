// cmd/feedcli is the CLI entry-point for the news-feed service, built
// with Cobra.
//
// Usage:
//
//	feedcli user create alice --display-name Alice
//	feedcli user follow <aliceID> <bobID>
//	feedcli post publish <aliceID> "hello world"
//	feedcli post like <aliceID> 123
//	feedcli feed <aliceID>
//
// User ids are the UserID values that "user create" returns, not
// usernames.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	timeout    time.Duration
	httpClient *http.Client
)

func main() {
	root := &cobra.Command{
		Use:   "feedcli",
		Short: "CLI client for the news-feed service",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:9090", "feed server address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(userCmd(), postCmd(), feedCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func client() *http.Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return httpClient
}

// ─── user ───────────────────────────────────────────────────────────

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "User management"}

	var displayName, bio string
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodPost, "/users", map[string]any{
				"username":     args[0],
				"display_name": displayName,
				"bio":          bio,
			})
		},
	}
	create.Flags().StringVar(&displayName, "display-name", "", "display name")
	create.Flags().StringVar(&bio, "bio", "", "bio")

	follow := &cobra.Command{
		Use:   "follow <userID> <targetID>",
		Short: "Follow a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodPost, fmt.Sprintf("/users/%s/follow/%s", args[0], args[1]), nil)
		},
	}

	unfollow := &cobra.Command{
		Use:   "unfollow <userID> <targetID>",
		Short: "Unfollow a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodDelete, fmt.Sprintf("/users/%s/follow/%s", args[0], args[1]), nil)
		},
	}

	block := &cobra.Command{
		Use:   "block <userID> <targetID>",
		Short: "Block a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodPost, fmt.Sprintf("/users/%s/block/%s", args[0], args[1]), nil)
		},
	}

	cmd.AddCommand(create, follow, unfollow, block)
	return cmd
}

// ─── post ───────────────────────────────────────────────────────────

func postCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "post", Short: "Post management"}

	publish := &cobra.Command{
		Use:   "publish <authorUserID> <content>",
		Short: "Publish a post",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodPost, "/posts", map[string]any{
				"author_user_id": args[0],
				"content":        args[1],
			})
		},
	}

	like := &cobra.Command{
		Use:   "like <userID> <postID>",
		Short: "Like a post",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodPost, fmt.Sprintf("/posts/%s/like", args[1]), map[string]any{"user_id": args[0]})
		},
	}

	comment := &cobra.Command{
		Use:   "comment <userID> <postID> <content>",
		Short: "Comment on a post",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodPost, fmt.Sprintf("/posts/%s/comments", args[1]), map[string]any{
				"user_id": args[0],
				"content": args[2],
			})
		},
	}

	share := &cobra.Command{
		Use:   "share <userID> <postID>",
		Short: "Share a post",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doJSON(http.MethodPost, fmt.Sprintf("/posts/%s/shares", args[1]), map[string]any{"user_id": args[0]})
		},
	}

	cmd.AddCommand(publish, like, comment, share)
	return cmd
}

// ─── feed ───────────────────────────────────────────────────────────

func feedCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "feed <userID>",
		Short: "Read a user's news feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/users/%s/feed?limit=%s&offset=%s",
				args[0], strconv.Itoa(limit), strconv.Itoa(offset))
			return doJSON(http.MethodGet, path, nil)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max entries to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")
	return cmd
}

// ─── helpers ────────────────────────────────────────────────────────

func doJSON(method, path string, body any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, serverAddr+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil
	}
	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
