package inbox

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/encore/internal/notification"
	"github.com/nao1215/encore/pkg/apperror"
)

// fakeSource はメモリ上のサーバー状態を持つSource。
type fakeSource struct {
	mu       sync.Mutex
	items    []notification.Notification
	markErr  error
	onMark   func()
	hook     func(call int)
	listCall int
}

func newFakeSource(items ...notification.Notification) *fakeSource {
	return &fakeSource{items: items}
}

// List は呼び出し時点の状態を複製してから、hookを呼んで返す。
func (s *fakeSource) List(_ context.Context, recipientID string) ([]notification.Notification, error) {
	s.mu.Lock()
	s.listCall++
	call := s.listCall
	var out []notification.Notification
	for _, n := range s.items {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return out, nil
}

func (s *fakeSource) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.onMark != nil {
		s.onMark()
		return context.Canceled
	}
	if s.markErr != nil {
		return s.markErr
	}
	i := slices.IndexFunc(s.items, func(n notification.Notification) bool { return n.ID == id })
	if i < 0 {
		return apperror.ErrNotFound
	}
	s.items[i].Read = true
	return nil
}

func (s *fakeSource) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.items, func(n notification.Notification) bool { return n.ID == id })
	if i < 0 {
		return apperror.ErrNotFound
	}
	s.items = slices.Delete(s.items, i, i+1)
	return nil
}

func (s *fakeSource) setHook(hook func(call int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

func (s *fakeSource) add(n notification.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]notification.Notification{n}, s.items...)
}

func item(id string, read bool) notification.Notification {
	return notification.Notification{ID: id, RecipientID: "me", Message: "msg " + id, Read: read}
}

// startState はStateのRunを起動し、テスト終了時に停止する。
func startState(t *testing.T, src Source) *State {
	t.Helper()

	s := NewState(src, "me")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

// assertConsistent は未読件数が一覧から数えた値と一致することを確認する。
func assertConsistent(t *testing.T, v View) {
	t.Helper()

	if got := notification.CountUnread(v.Notifications); got != v.UnreadCount {
		t.Errorf("UnreadCount = %d, 一覧から数えた値 = %d", v.UnreadCount, got)
	}
}

func findItem(v View, id string) (notification.Notification, bool) {
	i := slices.IndexFunc(v.Notifications, func(n notification.Notification) bool { return n.ID == id })
	if i < 0 {
		return notification.Notification{}, false
	}
	return v.Notifications[i], true
}

// TestState_Resync は取得による全置き換えを検証する。
func TestState_Resync(t *testing.T) {
	t.Parallel()

	t.Run("取得した一覧で置き換わり未読件数が数え直されること", func(t *testing.T) {
		t.Parallel()

		src := newFakeSource(item("n3", false), item("n2", true), item("n1", false))
		s := startState(t, src)

		if err := s.Resync(t.Context()); err != nil {
			t.Fatalf("Resync()でエラーが発生: %v", err)
		}
		v := s.View()
		if v.UnreadCount != 2 {
			t.Errorf("UnreadCount = %d, want 2", v.UnreadCount)
		}
		ids := []string{v.Notifications[0].ID, v.Notifications[1].ID, v.Notifications[2].ID}
		if !slices.Equal(ids, []string{"n3", "n2", "n1"}) {
			t.Errorf("順序 = %v, want [n3 n2 n1]", ids)
		}
		assertConsistent(t, v)
	})

	t.Run("適用ごとにChangesへ最新のViewが届くこと", func(t *testing.T) {
		t.Parallel()

		src := newFakeSource(item("n1", false))
		s := startState(t, src)

		if err := s.Resync(t.Context()); err != nil {
			t.Fatalf("Resync()でエラーが発生: %v", err)
		}
		select {
		case v := <-s.Changes():
			if v.UnreadCount != 1 {
				t.Errorf("UnreadCount = %d, want 1", v.UnreadCount)
			}
		case <-time.After(time.Second):
			t.Fatal("Changesに何も届かない")
		}
	})

	t.Run("後から始まった取得より遅れて届いた取得は捨てられること", func(t *testing.T) {
		t.Parallel()

		src := newFakeSource(item("n1", false))
		s := startState(t, src)

		fetched := make(chan struct{})
		release := make(chan struct{})
		src.setHook(func(call int) {
			if call == 1 {
				close(fetched)
				<-release
			}
		})

		firstErr := make(chan error, 1)
		go func() { firstErr <- s.Resync(t.Context()) }()
		<-fetched

		src.add(item("n2", false))
		if err := s.Resync(t.Context()); err != nil {
			t.Fatalf("2回目のResync()でエラーが発生: %v", err)
		}
		close(release)

		if err := <-firstErr; !errors.Is(err, ErrStaleSnapshot) {
			t.Errorf("1回目のResync() = %v, want ErrStaleSnapshot", err)
		}
		if v := s.View(); len(v.Notifications) != 2 {
			t.Errorf("件数 = %d, want 2", len(v.Notifications))
		}
	})
}

// TestState_MarkRead は既読化とポーリングの競合を検証する。
func TestState_MarkRead(t *testing.T) {
	t.Parallel()

	t.Run("既読化の前に取得した一覧が後から届いても既読のままであること", func(t *testing.T) {
		t.Parallel()

		src := newFakeSource(item("n2", false), item("n1", false))
		s := startState(t, src)
		if err := s.Resync(t.Context()); err != nil {
			t.Fatalf("Resync()でエラーが発生: %v", err)
		}

		// サーバーが既読化を反映する前の状態で取得を止めておく
		fetched := make(chan struct{})
		release := make(chan struct{})
		src.setHook(func(call int) {
			if call == 2 {
				close(fetched)
				<-release
			}
		})
		pollErr := make(chan error, 1)
		go func() { pollErr <- s.Resync(t.Context()) }()
		<-fetched

		if err := s.MarkRead(t.Context(), "n1"); err != nil {
			t.Fatalf("MarkRead()でエラーが発生: %v", err)
		}
		if v := s.View(); v.UnreadCount != 1 {
			t.Errorf("既読化直後のUnreadCount = %d, want 1", v.UnreadCount)
		}

		close(release)
		if err := <-pollErr; err != nil {
			t.Fatalf("Resync()でエラーが発生: %v", err)
		}

		v := s.View()
		if n, _ := findItem(v, "n1"); !n.Read {
			t.Error("古い一覧でn1が未読に戻った")
		}
		if v.UnreadCount != 1 {
			t.Errorf("UnreadCount = %d, want 1", v.UnreadCount)
		}
		assertConsistent(t, v)

		// 次の取得で反映が確認され、保留が外れる
		src.setHook(nil)
		if err := s.Resync(t.Context()); err != nil {
			t.Fatalf("Resync()でエラーが発生: %v", err)
		}
		if v := s.View(); v.UnreadCount != 1 {
			t.Errorf("確認後のUnreadCount = %d, want 1", v.UnreadCount)
		}
	})

	t.Run("連続した既読化で未読件数が二重に減らないこと", func(t *testing.T) {
		t.Parallel()

		src := newFakeSource(item("n2", false), item("n1", false))
		s := startState(t, src)
		if err := s.Resync(t.Context()); err != nil {
			t.Fatalf("Resync()でエラーが発生: %v", err)
		}

		for range 2 {
			if err := s.MarkRead(t.Context(), "n1"); err != nil {
				t.Fatalf("MarkRead()でエラーが発生: %v", err)
			}
		}
		v := s.View()
		if v.UnreadCount != 1 {
			t.Errorf("UnreadCount = %d, want 1", v.UnreadCount)
		}
		assertConsistent(t, v)
	})

	t.Run("サーバーが失敗した場合は次の取得で未読に戻ること", func(t *testing.T) {
		t.Parallel()

		src := newFakeSource(item("n1", false))
		src.markErr = apperror.Storage("notification.mark_read", errors.New("unreachable"))
		s := startState(t, src)
		if err := s.Resync(t.Context()); err != nil {
			t.Fatalf("Resync()でエラーが発生: %v", err)
		}

		err := s.MarkRead(t.Context(), "n1")
		if err == nil {
			t.Fatal("エラーが返るべき")
		}
		if v := s.View(); v.UnreadCount != 0 {
			t.Errorf("失敗直後のUnreadCount = %d, want 0", v.UnreadCount)
		}

		if err := s.Resync(t.Context()); err != nil {
			t.Fatalf("Resync()でエラーが発生: %v", err)
		}
		v := s.View()
		if v.UnreadCount != 1 {
			t.Errorf("取得後のUnreadCount = %d, want 1", v.UnreadCount)
		}
		assertConsistent(t, v)
	})
}

// TestState_Delete は削除の反映を検証する。
// TestState_MarkReadCanceled は既読化の途中で呼び出し元が取り消した場合を検証する。
func TestState_MarkReadCanceled(t *testing.T) {
	t.Parallel()

	t.Run("サーバーへ届く前に取り消されると次の取得で未読に戻ること", func(t *testing.T) {
		t.Parallel()

		// 結果の受け渡しとctxの取り消しの競合を何度も試す
		for range 20 {
			src := newFakeSource(item("n1", false))
			s := startState(t, src)
			if err := s.Resync(t.Context()); err != nil {
				t.Fatalf("Resync()でエラーが発生: %v", err)
			}

			ctx, cancel := context.WithCancel(t.Context())
			src.mu.Lock()
			src.onMark = cancel
			src.mu.Unlock()

			if err := s.MarkRead(ctx, "n1"); !errors.Is(err, context.Canceled) {
				t.Fatalf("MarkRead() = %v, want context.Canceled", err)
			}
			for range 2 {
				if err := s.Resync(t.Context()); err != nil {
					t.Fatalf("Resync()でエラーが発生: %v", err)
				}
			}

			v := s.View()
			if n, ok := findItem(v, "n1"); !ok || n.Read {
				t.Fatalf("n1 = %+v, want 未読", n)
			}
			if v.UnreadCount != 1 {
				t.Errorf("UnreadCount = %d, want 1", v.UnreadCount)
			}
			assertConsistent(t, v)
		}
	})
}

func TestState_Delete(t *testing.T) {
	t.Parallel()

	t.Run("未読の通知を削除すると未読件数も減ること", func(t *testing.T) {
		t.Parallel()

		src := newFakeSource(item("n2", false), item("n1", false))
		s := startState(t, src)
		if err := s.Resync(t.Context()); err != nil {
			t.Fatalf("Resync()でエラーが発生: %v", err)
		}

		if err := s.Delete(t.Context(), "n2"); err != nil {
			t.Fatalf("Delete()でエラーが発生: %v", err)
		}
		v := s.View()
		if _, ok := findItem(v, "n2"); ok {
			t.Error("削除した通知が残っている")
		}
		if v.UnreadCount != 1 {
			t.Errorf("UnreadCount = %d, want 1", v.UnreadCount)
		}
		assertConsistent(t, v)
	})

	t.Run("削除の前に取得した一覧が後から届いても復活しないこと", func(t *testing.T) {
		t.Parallel()

		src := newFakeSource(item("n1", false))
		s := startState(t, src)
		if err := s.Resync(t.Context()); err != nil {
			t.Fatalf("Resync()でエラーが発生: %v", err)
		}

		fetched := make(chan struct{})
		release := make(chan struct{})
		src.setHook(func(call int) {
			if call == 2 {
				close(fetched)
				<-release
			}
		})
		pollErr := make(chan error, 1)
		go func() { pollErr <- s.Resync(t.Context()) }()
		<-fetched

		if err := s.Delete(t.Context(), "n1"); err != nil {
			t.Fatalf("Delete()でエラーが発生: %v", err)
		}
		close(release)
		if err := <-pollErr; err != nil {
			t.Fatalf("Resync()でエラーが発生: %v", err)
		}

		v := s.View()
		if len(v.Notifications) != 0 || v.UnreadCount != 0 {
			t.Errorf("View = %+v, want 空", v)
		}
	})

	t.Run("存在しない通知の削除はエラーになること", func(t *testing.T) {
		t.Parallel()

		s := startState(t, newFakeSource())
		if err := s.Delete(t.Context(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

// TestState_Generation はマウントし直す前の取得が捨てられることを検証する。
func TestState_Generation(t *testing.T) {
	t.Parallel()

	src := newFakeSource(item("n1", false))
	s := startState(t, src)
	gen := s.Mount()

	fetched := make(chan struct{})
	release := make(chan struct{})
	src.setHook(func(int) {
		close(fetched)
		<-release
	})
	pollErr := make(chan error, 1)
	go func() { pollErr <- s.Resync(t.Context()) }()
	<-fetched

	s.Unmount()
	if next := s.Mount(); next <= gen {
		t.Errorf("新しい世代 = %d, want %d より大きい値", next, gen)
	}
	close(release)

	if err := <-pollErr; !errors.Is(err, ErrStaleSnapshot) {
		t.Errorf("Resync() = %v, want ErrStaleSnapshot", err)
	}
	if v := s.View(); len(v.Notifications) != 0 {
		t.Errorf("古い取得が適用された: %+v", v)
	}
}

// TestState_Stopped は停止後の操作を検証する。
func TestState_Stopped(t *testing.T) {
	t.Parallel()

	s := NewState(newFakeSource(), "me")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	cancel()
	<-done

	if err := s.Resync(t.Context()); !errors.Is(err, ErrStopped) {
		t.Errorf("Resync() = %v, want ErrStopped", err)
	}
}
