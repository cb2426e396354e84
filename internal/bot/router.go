// Package bot routes Telegram commands and inline-button callbacks to the
// fixture browsing, subscription and status handlers.
package bot

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "matchbot/internal/runtime/supervisor"
	kit "matchbot/internal/transport"
	logx "matchbot/pkg/logx"
	"matchbot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

const defaultTimeout = 60 * time.Second

// Command is a slash command, e.g. "start" for /start.
type Command struct {
	Name        string
	Description string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

// Callback handles inline-button data of the form "action[:payload]".
type Callback struct {
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update    kit.Update
	Chat      kit.ChatTarget
	FromID    int64
	Username  string
	FirstName string
	Route     string
	Args      []string
	Payload   string
	// Ref points at the message that carried the pressed button.
	Ref    kit.MessageRef
	ReqID  string
	Logger logx.Logger

	callbackID string
	answered   bool
	adapter    kit.Adapter
}

func (r *Request) IsCallback() bool { return r.callbackID != "" }

// Answer stops the button spinner, optionally with a toast.
func (r *Request) Answer(ctx context.Context, text string) error {
	if r.callbackID == "" || r.answered {
		return nil
	}
	r.answered = true
	return r.adapter.AnswerCallback(ctx, r.callbackID, text)
}

// Reply sends m to the request's chat.
func (r *Request) Reply(ctx context.Context, m tgui.Message) error {
	_, err := m.Send(ctx, r.adapter, r.Chat)
	return err
}

// Show edits the originating message for callbacks and replies otherwise.
func (r *Request) Show(ctx context.Context, m tgui.Message) error {
	if r.IsCallback() && r.Ref.MessageID != 0 {
		return m.Edit(ctx, r.adapter, r.Ref)
	}
	return r.Reply(ctx, m)
}

type Router struct {
	log     logx.Logger
	adapter kit.Adapter

	mu        sync.RWMutex
	owners    []int64
	commands  map[string]Command
	order     []string
	callbacks map[string]Callback
	fallback  HandlerFunc
	onError   HandlerFunc
	obs       RequestObserver


	jobs chan func()
}

func NewRouter(adapter kit.Adapter, log logx.Logger, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		log:       log.With(logx.String("comp", "bot.router")),
		adapter:   adapter,
		owners:    append([]int64(nil), owners...),
		commands:  map[string]Command{},
		callbacks: map[string]Callback{},
		jobs:      make(chan func(), 256),
	}
}

func (r *Router) Command(c Command) {
	name := strings.ToLower(strings.TrimSpace(c.Name))
	if name == "" || c.Handle == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commands[name]; !ok {
		r.order = append(r.order, name)
	}
	c.Name = name
	r.commands[name] = c
}

func (r *Router) Callback(cb Callback) {
	if strings.TrimSpace(cb.Action) == "" || cb.Handle == nil {
		return
	}
	r.mu.Lock()
	r.callbacks[cb.Action] = cb
	r.mu.Unlock()
}

// Fallback handles plain text and unknown commands.
func (r *Router) Fallback(h HandlerFunc) {
	r.mu.Lock()
	r.fallback = h
	r.mu.Unlock()
}

// OnError renders a reply after a handler failed.
func (r *Router) OnError(h HandlerFunc) {
	r.mu.Lock()
	r.onError = h
	r.mu.Unlock()
}

// Observe installs a per-request observer.
func (r *Router) Observe(obs RequestObserver) {
	r.mu.Lock()
	r.obs = obs
	r.mu.Unlock()
}

// SetOwners updates the owner list. Safe during hot reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.owners {
		if o == id {
			return true
		}
	}
	return false
}

// UpdateMenu publishes public commands to the Telegram /menu list.
func (r *Router) UpdateMenu(ctx context.Context) error {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	r.mu.RLock()
	menu := make([]kit.BotCommand, 0, len(r.order))
	for _, name := range r.order {
		c := r.commands[name]
		if c.Access != AccessEveryone || c.Description == "" {
			continue
		}
		menu = append(menu, kit.BotCommand{Command: name, Description: c.Description})
	}
	r.mu.RUnlock()
	return up.UpdateMenuCommands(ctx, menu)
}

func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates with a bounded worker pool until ctx is done
// or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(r.log), rtsup.WithCancelOnError(false))
	r.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("bot.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if p := recover(); p != nil {
								r.log.Error("panic in bot job", logx.Int("worker", idx), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}

	defer func() {
		close(r.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if !r.tryEnqueue(func() { _ = r.Serve(ctx, up) }) {
				r.busy(ctx, up)
			}
		}
	}
}

func (r *Router) busy(ctx context.Context, up kit.Update) {
	switch {
	case up.Callback != nil:
		_ = r.adapter.AnswerCallback(ctx, up.Callback.ID, "⏳ Busy, try again")
	case up.Message != nil:
		_, _ = r.adapter.SendText(ctx, up.Target(), "⏳ Busy, try again in a moment.", nil)
	}
}

// Serve handles a single update synchronously.
func (r *Router) Serve(ctx context.Context, up kit.Update) error {
	req, h, timeout := r.resolve(ctx, up)
	if req == nil || h == nil {
		return nil
	}
	r.mu.RLock()
	obs := r.obs
	r.mu.RUnlock()
	final := Chain(h, withAccounting(obs), withRecover, withTimeout(timeout))
	err := final(ctx, req)
	if err != nil {
		r.mu.RLock()
		onErr := r.onError
		r.mu.RUnlock()
		if onErr != nil {
			_ = onErr(ctx, req)
		}
	}
	if req.IsCallback() {
		_ = req.Answer(ctx, "")
	}
	return err
}

func (r *Router) resolve(ctx context.Context, up kit.Update) (*Request, HandlerFunc, time.Duration) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return nil, nil, 0
		}
		return r.resolveMessage(ctx, up)
	case kit.UpdateCallback:
		if up.Callback == nil {
			return nil, nil, 0
		}
		return r.resolveCallback(ctx, up)
	}
	return nil, nil, 0
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, fromID int64, route string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  fromID,
		Route:   route,
		ReqID:   rid,
		adapter: r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", fromID),
		),
	}
}

func (r *Router) resolveMessage(ctx context.Context, up kit.Update) (*Request, HandlerFunc, time.Duration) {
	msg := up.Message
	chat := up.Target()
	text := strings.TrimSpace(msg.Text)

	r.mu.RLock()
	fallback := r.fallback
	var (
		cmd   Command
		found bool
		args  []string
	)
	if strings.HasPrefix(text, "/") {
		fields := strings.Fields(text)
		word := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
		if i := strings.IndexByte(word, '@'); i >= 0 {
			word = word[:i]
		}
		cmd, found = r.commands[word]
		args = fields[1:]
	}
	r.mu.RUnlock()

	if !found {
		req := r.newRequest(up, chat, msg.FromID, "text")
		req.Username, req.FirstName = msg.FromUsername, msg.FromName
		return req, fallback, defaultTimeout
	}

	req := r.newRequest(up, chat, msg.FromID, "/"+cmd.Name)
	req.Username, req.FirstName = msg.FromUsername, msg.FromName
	req.Args = args
	if cmd.Access == AccessOwnerOnly && !r.isOwner(msg.FromID) {
		_, _ = r.adapter.SendText(ctx, chat, "⛔ This command is for bot owners only.", nil)
		return nil, nil, 0
	}
	return req, cmd.Handle, timeoutOr(cmd.Timeout)
}

func (r *Router) resolveCallback(ctx context.Context, up kit.Update) (*Request, HandlerFunc, time.Duration) {
	cb := up.Callback
	action, payload := tgui.ParseData(cb.Data)

	r.mu.RLock()
	route, ok := r.callbacks[action]
	r.mu.RUnlock()
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return nil, nil, 0
	}
	if route.Access == AccessOwnerOnly && !r.isOwner(cb.FromID) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "⛔ Owners only")
		return nil, nil, 0
	}

	chat := up.Target()
	req := r.newRequest(up, chat, cb.FromID, "cb:"+action)
	req.Username = cb.FromUsername
	req.Payload = payload
	req.callbackID = cb.ID
	req.Ref = kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	return req, route.Handle, timeoutOr(route.Timeout)
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}
