package inbox

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/nao1215/encore/internal/notification"
	"github.com/nao1215/encore/pkg/logging"
)

var (
	// ErrStaleSnapshot は取得した一覧が古いため適用しなかったことを表す。
	ErrStaleSnapshot = errors.New("古い一覧のため破棄しました")
	// ErrStopped はRunが終了していることを表す。
	ErrStopped = errors.New("状態の管理が停止しています")
)

// View はある時点の状態のコピー。
type View struct {
	// Notifications は新しい順の通知一覧。
	Notifications []notification.Notification
	// UnreadCount はNotificationsのうち未読の件数。
	UnreadCount int
	// Generation は適用時点のマウント世代。
	Generation uint64
}

type opKind int

const (
	opRead opKind = iota + 1
	opDelete
)

func (k opKind) String() string {
	if k == opDelete {
		return "delete"
	}
	return "read"
}

type updateKind int

const (
	updateSnapshot updateKind = iota + 1
	updateLocal
	updateSettled
)

// update はRunゴルーチンへ送る1件の変更。
type update struct {
	kind updateKind
	// gen と seq はスナップショットの取得開始時点の値。
	gen   uint64
	seq   uint64
	items []notification.Notification
	op    opKind
	id    string
	err   error
	// done は適用結果を受け取る。
	done chan error
}

// State は1人分の通知一覧と未読件数を持つ。
// 状態はRunのゴルーチンだけが書き換える。
type State struct {
	source Source
	userID string

	updates chan update
	changes chan View
	stopped chan struct{}

	generation atomic.Uint64
	fetchSeq   atomic.Uint64

	// 以下はRunのゴルーチンだけが触る。
	notifications []notification.Notification
	pending       map[string]opKind
	appliedSeq    uint64

	mu   sync.RWMutex
	view View
}

// NewState は新しいStateを生成する。
func NewState(source Source, userID string) *State {
	return &State{
		source:        source,
		userID:        userID,
		updates:       make(chan update),
		changes:       make(chan View, 1),
		stopped:       make(chan struct{}),
		notifications: []notification.Notification{},
		pending:       make(map[string]opKind),
		view:          View{Notifications: []notification.Notification{}},
	}
}

// String はスーパーバイザーのログに出る名前を返す。
func (s *State) String() string {
	return "inbox-state"
}

// Serve はRunを呼び出す。
func (s *State) Serve(ctx context.Context) error {
	return s.Run(ctx)
}

// Run はctxがキャンセルされるまで更新を1件ずつ適用する。
func (s *State) Run(ctx context.Context) error {
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-s.updates:
			u.done <- s.apply(u)
		}
	}
}

// View は現在の状態のコピーを返す。
func (s *State) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.view
	v.Notifications = slices.Clone(v.Notifications)
	return v
}

// Changes は状態が変わるたびに最新のViewを受け取るチャネルを返す。
// 読み手が遅れた場合は最新のものだけが残る。
func (s *State) Changes() <-chan View {
	return s.changes
}

// Mount は表示を開始し、新しい世代を返す。それ以前に始まった取得は捨てられる。
func (s *State) Mount() uint64 {
	return s.generation.Add(1)
}

// Unmount は表示を終了する。それ以前に始まった取得は捨てられる。
func (s *State) Unmount() {
	s.generation.Add(1)
}

// Resync はサーバーから一覧を取り直して状態を置き換える。
// 取得中にマウントし直された場合や、より新しい取得が先に適用された場合は
// ErrStaleSnapshotを返す。
func (s *State) Resync(ctx context.Context) error {
	gen := s.generation.Load()
	seq := s.fetchSeq.Add(1)

	items, err := s.source.List(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	return s.submit(ctx, update{kind: updateSnapshot, gen: gen, seq: seq, items: items})
}

// MarkRead は通知をその場で既読にしてからサーバーへ送る。
// サーバーが失敗した場合はエラーを返し、次の取得でサーバーの状態に戻る。
func (s *State) MarkRead(ctx context.Context, id string) error {
	return s.act(ctx, opRead, id, s.source.MarkRead)
}

// Delete は通知をその場で一覧から外してからサーバーへ送る。
func (s *State) Delete(ctx context.Context, id string) error {
	return s.act(ctx, opDelete, id, s.source.Delete)
}

func (s *State) act(ctx context.Context, op opKind, id string, call func(context.Context, string) error) error {
	if err := s.submit(ctx, update{kind: updateLocal, op: op, id: id}); err != nil {
		return err
	}
	callErr := call(ctx, id)
	// 呼び出し中にctxが取り消されても、保留を残さないよう結果は必ず渡す
	if err := s.submit(context.WithoutCancel(ctx), update{kind: updateSettled, op: op, id: id, err: callErr}); err != nil {
		return errors.Join(callErr, err)
	}
	if callErr != nil {
		return fmt.Errorf("通知 %s の %s に失敗: %w", id, op, callErr)
	}
	return nil
}

// submit は更新をRunへ渡し、適用されるまで待つ。
func (s *State) submit(ctx context.Context, u update) error {
	u.done = make(chan error, 1)
	select {
	case s.updates <- u:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// 受け取られた更新は必ず適用されるため、完了まで待つ
	return <-u.done
}

// apply は唯一の書き込み経路。どの更新の後も未読件数は一覧から数え直す。
func (s *State) apply(u update) error {
	switch u.kind {
	case updateSnapshot:
		if u.gen != s.generation.Load() || u.seq <= s.appliedSeq {
			logging.Debug().Uint64("gen", u.gen).Uint64("seq", u.seq).Msg("古い通知一覧を破棄しました")
			return ErrStaleSnapshot
		}
		s.appliedSeq = u.seq
		s.notifications = s.overlay(u.items)
	case updateLocal:
		s.pending[u.id] = u.op
		s.notifications = applyOp(s.notifications, u.op, u.id)
	case updateSettled:
		if u.err != nil && s.pending[u.id] == u.op {
			delete(s.pending, u.id)
			logging.Warn().Err(u.err).Str("notification_id", u.id).Str("op", u.op.String()).
				Msg("サーバーへの反映に失敗しました。次の取得で元に戻ります")
		}
		// 成功した場合は一覧で確認できるまで保留を残す
		return nil
	}
	s.publish()
	return nil
}

// overlay は取得した一覧に保留中の操作を重ねる。
// 一覧で反映済みと確認できた操作は保留から外す。
func (s *State) overlay(items []notification.Notification) []notification.Notification {
	out := slices.Clone(items)
	if out == nil {
		out = []notification.Notification{}
	}
	for id, op := range s.pending {
		i := slices.IndexFunc(out, func(n notification.Notification) bool { return n.ID == id })
		confirmed := i < 0 || (op == opRead && out[i].Read)
		if confirmed {
			delete(s.pending, id)
			continue
		}
		out = applyOp(out, op, id)
	}
	return out
}

func applyOp(items []notification.Notification, op opKind, id string) []notification.Notification {
	i := slices.IndexFunc(items, func(n notification.Notification) bool { return n.ID == id })
	if i < 0 {
		return items
	}
	out := slices.Clone(items)
	switch op {
	case opRead:
		out[i].Read = true
	case opDelete:
		out = slices.Delete(out, i, i+1)
	}
	return out
}

// publish は現在の一覧からViewを作り直して通知する。
func (s *State) publish() {
	v := View{
		Notifications: slices.Clone(s.notifications),
		UnreadCount:   notification.CountUnread(s.notifications),
		Generation:    s.generation.Load(),
	}

	s.mu.Lock()
	s.view = v
	s.mu.Unlock()

	// 古いViewが残っていれば差し替える
	select {
	case <-s.changes:
	default:
	}
	select {
	case s.changes <- v:
	default:
	}
}
