package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

type roomSet map[string]struct{}

func (s roomSet) has(room string) bool {
	_, ok := s[room]
	return ok
}

func (s roomSet) sorted() []string {
	out := make([]string, 0, len(s))
	for room := range s {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

type styles struct {
	timestamp lipgloss.Style
	room      lipgloss.Style
	user      lipgloss.Style
	private   lipgloss.Style
	info      lipgloss.Style
	err       lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		timestamp: r.NewStyle().Foreground(lipgloss.Color("241")),
		room:      r.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		user:      r.NewStyle().Foreground(lipgloss.Color("214")),
		private:   r.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
		info:      r.NewStyle().Foreground(lipgloss.Color("245")),
		err:       r.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// Display tracks which rooms the user has subscribed to, shows and casts to,
// and prints server events accordingly. It implements
// chatclient.ChatEventSink.
type Display struct {
	mu     sync.Mutex
	out    io.Writer
	width  int
	color  bool
	styles styles
	now    func() time.Time

	subscribed roomSet
	shown      roomSet
	cast       roomSet
}

// NewDisplay writes to out. width > 0 wraps long lines; color enables ANSI
// styling.
func NewDisplay(out io.Writer, width int, color bool) *Display {
	return &Display{
		out:        out,
		width:      width,
		color:      color,
		styles:     newStyles(lipgloss.NewRenderer(out)),
		now:        time.Now,
		subscribed: roomSet{},
		shown:      roomSet{},
		cast:       roomSet{},
	}
}

func (d *Display) paint(style lipgloss.Style, s string) string {
	if !d.color {
		return s
	}
	return style.Render(s)
}

// println writes one line. The caller holds d.mu.
func (d *Display) println(line string) {
	if d.width > 0 {
		line = wordwrap.String(line, d.width)
	}
	fmt.Fprintln(d.out, line)
}

func (d *Display) stamped(line string) {
	ts := d.paint(d.styles.timestamp, d.now().Format("15:04:05"))
	d.println(ts + " " + line)
}

// Info prints a status line.
func (d *Display) Info(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.println(d.paint(d.styles.info, fmt.Sprintf(format, args...)))
}

// Error prints a failure line.
func (d *Display) Error(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.println(d.paint(d.styles.err, fmt.Sprintf(format, args...)))
}

// List prints a heading followed by one bullet per item.
func (d *Display) List(heading string, items []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	b.WriteString(heading)
	for _, item := range items {
		b.WriteString("\n    - ")
		b.WriteString(item)
	}
	fmt.Fprintln(d.out, b.String())
}

// Subscribed records a successful subscription.
func (d *Display) Subscribed(room string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribed[room] = struct{}{}
}

// Unsubscribed forgets room entirely.
func (d *Display) Unsubscribed(room string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forget(room)
}

// IsSubscribed reports whether the user is subscribed to room.
func (d *Display) IsSubscribed(room string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subscribed.has(room)
}

// Select shows and casts to room exclusively.
func (d *Display) Select(room string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown = roomSet{room: {}}
	d.cast = roomSet{room: {}}
}

// Show starts displaying messages from room.
func (d *Display) Show(room string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case !d.subscribed.has(room):
		return notSubscribed(room)
	case d.shown.has(room):
		return fmt.Errorf("Already showing messages from room '%s'.", room)
	}
	d.shown[room] = struct{}{}
	return nil
}

// Hide stops displaying messages from room and stops casting to it.
func (d *Display) Hide(room string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case !d.subscribed.has(room):
		return notSubscribed(room)
	case !d.shown.has(room):
		return fmt.Errorf("Already hiding messages from room '%s'.", room)
	}
	delete(d.shown, room)
	delete(d.cast, room)
	return nil
}

// Cast replaces the set of rooms that plain text is sent to. Every room must
// be subscribed and shown; otherwise nothing changes and every problem is
// returned.
func (d *Display) Cast(rooms []string) []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for _, room := range rooms {
		switch {
		case !d.subscribed.has(room):
			errs = append(errs, notSubscribed(room))
		case !d.shown.has(room):
			errs = append(errs, fmt.Errorf("You must be showing room '%s' to cast to it. Use /show.", room))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	d.cast = roomSet{}
	for _, room := range rooms {
		d.cast[room] = struct{}{}
	}
	return nil
}

// CastRooms returns the rooms plain text is sent to, sorted.
func (d *Display) CastRooms() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cast.sorted()
}

// ShownRooms returns the rooms whose messages are displayed, sorted.
func (d *Display) ShownRooms() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown.sorted()
}

// SubscribedRooms returns the subscribed rooms, sorted.
func (d *Display) SubscribedRooms() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subscribed.sorted()
}

// Reset forgets every room.
func (d *Display) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribed = roomSet{}
	d.shown = roomSet{}
	d.cast = roomSet{}
}

func (d *Display) forget(room string) {
	delete(d.subscribed, room)
	delete(d.shown, room)
	delete(d.cast, room)
}

func (d *Display) OnRoomMessage(room, from, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.shown.has(room) {
		return
	}
	d.stamped(fmt.Sprintf("%s %s: %s",
		d.paint(d.styles.room, "("+room+")"),
		d.paint(d.styles.user, from),
		text))
}

func (d *Display) OnPersonalMessage(from, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stamped(fmt.Sprintf("%s %s: %s",
		d.paint(d.styles.private, "(pm)"),
		d.paint(d.styles.user, from),
		text))
}

func (d *Display) OnRoomDeleted(room string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forget(room)
	d.stamped(fmt.Sprintf("Room '%s' was deleted.", room))
}

func (d *Display) OnDisconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribed = roomSet{}
	d.shown = roomSet{}
	d.cast = roomSet{}
	d.stamped("Server disconnected.")
}

func notSubscribed(room string) error {
	return fmt.Errorf("You are not subscribed to room '%s'. Use /subscribe.", room)
}
