// inboxwatchのエントリポイント。
// 1人分の通知一覧をポーリングとプッシュで追いかけ、未読バッジを表示する。
// 標準入力から mount / unmount / list / read <id> / delete <id> / quit を受け付ける。
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nao1215/encore/internal/badge"
	"github.com/nao1215/encore/internal/config"
	"github.com/nao1215/encore/internal/inbox"
	"github.com/nao1215/encore/internal/supervisor"
	"github.com/nao1215/encore/pkg/httpclient"
	"github.com/nao1215/encore/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("inboxwatchが異常終了しました")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: "console"})
	if cfg.Inbox.UserID == "" {
		return errors.New("inbox.user_id（ENCORE_INBOX_USER_ID）が必要です")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := httpclient.New(cfg.Inbox.BaseURL, httpclient.WithToken(cfg.Inbox.Token))
	state := inbox.NewState(inbox.NewHTTPSource(client), cfg.Inbox.UserID)
	poller := inbox.NewPoller(state, cfg.Inbox.PollInterval)

	tree := supervisor.New("inboxwatch", supervisor.Config{})
	tree.AddMessagingService(state)
	if cfg.Inbox.WSURL != "" {
		tree.AddAPIService(inbox.NewListener(state, cfg.Inbox.WSURL))
	}
	treeDone := tree.ServeBackground(ctx)

	go render(ctx, os.Stdout, state)

	poller.Mount(ctx)
	defer poller.Unmount()

	cmdErr := make(chan error, 1)
	go func() { cmdErr <- readCommands(ctx, os.Stdin, os.Stdout, state, poller) }()

	select {
	case <-ctx.Done():
	case err := <-cmdErr:
		if err != nil {
			return err
		}
	}
	poller.Unmount()
	stop()
	<-treeDone
	return nil
}

// render は状態が変わるたびに未読バッジを表示する。
func render(ctx context.Context, w io.Writer, state *inbox.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-state.Changes():
			label := badge.Render(v.UnreadCount)
			if label == "" {
				label = "-"
			}
			fmt.Fprintf(w, "[%s] 通知 %d 件\n", label, len(v.Notifications))
		}
	}
}

// readCommands は標準入力のコマンドを1行ずつ実行する。quitかEOFで戻る。
func readCommands(ctx context.Context, r io.Reader, w io.Writer, state *inbox.State, poller *inbox.Poller) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)

		var err error
		switch cmd {
		case "":
		case "quit", "exit":
			return nil
		case "mount":
			poller.Mount(ctx)
		case "unmount":
			poller.Unmount()
		case "list":
			printList(w, state.View())
		case "read":
			err = state.MarkRead(ctx, arg)
		case "delete":
			err = state.Delete(ctx, arg)
		default:
			fmt.Fprintf(w, "不明なコマンドです: %s\n", cmd)
		}
		if err != nil {
			fmt.Fprintf(w, "失敗しました: %v\n", err)
		}
	}
	return scanner.Err()
}

func printList(w io.Writer, v inbox.View) {
	for _, n := range v.Notifications {
		mark := "*"
		if n.Read {
			mark = " "
		}
		fmt.Fprintf(w, "%s %s  %s  %s\n", mark, n.ID, n.CreatedAt.Format("2006-01-02 15:04"), n.Message)
	}
	fmt.Fprintf(w, "未読 %d 件\n", v.UnreadCount)
}
