package driver_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/darkfathom/scribe-cli/api/schemas"
	"github.com/darkfathom/scribe-cli/internal/dom"
	"github.com/darkfathom/scribe-cli/internal/driver"
)

const driverHTML = `
	<html>
	<body>
		<button id="go">Go</button>
		<input id="name" type="text">
		<select id="pick">
			<option value="a">A</option>
			<option value="b">B</option>
		</select>
		<input id="opt" type="checkbox">
	</body>
	</html>
	`

type eventLog struct {
	events []*dom.Event
}

func newDriverRig(t *testing.T) (*dom.Document, *driver.Driver, *eventLog) {
	t.Helper()
	doc, err := dom.Parse(strings.NewReader(driverHTML), dom.Rect{Width: 400, Height: 300}, zap.NewNop())
	require.NoError(t, err)

	log := &eventLog{}
	for _, et := range []dom.EventType{
		dom.EventClick, dom.EventInput, dom.EventKeyDown,
		dom.EventPointerMove, dom.EventPointerLeave, dom.EventScroll,
	} {
		doc.AddListener(et, func(ev *dom.Event) { log.events = append(log.events, ev) })
	}
	return doc, driver.New(doc, zap.NewNop()), log
}

func (l *eventLog) last(t *testing.T) *dom.Event {
	t.Helper()
	require.NotEmpty(t, l.events)
	return l.events[len(l.events)-1]
}

func TestMoveDispatchesPointerMoveWithHitTarget(t *testing.T) {
	_, d, log := newDriverRig(t)

	// Rows stack at 24px: the button occupies the first row.
	require.NoError(t, d.Exec("move 10 5"))

	ev := log.last(t)
	assert.Equal(t, dom.EventPointerMove, ev.Type)
	require.NotNil(t, ev.Target)
	assert.Equal(t, "go", ev.Target.Attr("id"))
	assert.Equal(t, 10.0, ev.X)
	assert.Equal(t, 5.0, ev.Y)
}

func TestClickUsesLastPointerPosition(t *testing.T) {
	_, d, log := newDriverRig(t)
	require.NoError(t, d.Exec("move 10 5"))
	require.NoError(t, d.Exec("click right 2"))

	ev := log.last(t)
	assert.Equal(t, dom.EventClick, ev.Type)
	assert.Equal(t, schemas.ButtonRight, ev.Button)
	assert.Equal(t, 2, ev.ClickCount)
	require.NotNil(t, ev.Target)
	assert.Equal(t, "go", ev.Target.Attr("id"))

	assert.Error(t, d.Exec("click sideways"))
	assert.Error(t, d.Exec("click left zero"))
}

func TestKeyParsesModifiers(t *testing.T) {
	_, d, log := newDriverRig(t)
	require.NoError(t, d.Exec("key Enter ctrl+shift"))

	ev := log.last(t)
	assert.Equal(t, dom.EventKeyDown, ev.Type)
	assert.Equal(t, "Enter", ev.Key)
	assert.True(t, ev.Modifiers.Has(schemas.ModifierCtrl))
	assert.True(t, ev.Modifiers.Has(schemas.ModifierShift))
	assert.False(t, ev.Modifiers.Has(schemas.ModifierAlt))

	assert.Error(t, d.Exec("key Enter hyper"))
	assert.Error(t, d.Exec("key"))
}

func TestTypeSetsValueAndFiresInput(t *testing.T) {
	_, d, log := newDriverRig(t)

	// The text input is the second row.
	require.NoError(t, d.Exec("move 10 30"))
	require.NoError(t, d.Exec("type hello world"))

	ev := log.last(t)
	assert.Equal(t, dom.EventInput, ev.Type)
	assert.Equal(t, "hello world", ev.Target.Value())

	// Typing into something that is not editable is rejected.
	require.NoError(t, d.Exec("move 10 5"))
	assert.Error(t, d.Exec("type nope"))
}

func TestSelectSetsValuesAndFiresInput(t *testing.T) {
	_, d, log := newDriverRig(t)

	// The select is the third row.
	require.NoError(t, d.Exec("move 10 54"))
	require.NoError(t, d.Exec("select b"))

	ev := log.last(t)
	assert.Equal(t, dom.EventInput, ev.Type)
	assert.Equal(t, []string{"b"}, ev.Target.SelectedValues())
}

func TestCheckTogglesHoveredCheckbox(t *testing.T) {
	_, d, log := newDriverRig(t)

	// The checkbox is the fourth row.
	require.NoError(t, d.Exec("move 10 78"))
	require.NoError(t, d.Exec("check"))

	ev := log.last(t)
	assert.Equal(t, dom.EventInput, ev.Type)
	assert.True(t, ev.Target.Checked())

	require.NoError(t, d.Exec("uncheck"))
	assert.False(t, log.last(t).Target.Checked())

	// Anything that is not a checkbox is rejected.
	require.NoError(t, d.Exec("move 10 5"))
	assert.Error(t, d.Exec("check"))
}

func TestScrollMovesViewportAndFiresEvent(t *testing.T) {
	doc, d, log := newDriverRig(t)
	require.NoError(t, d.Exec("scroll 40"))

	assert.Equal(t, 40.0, doc.ScrollY())
	assert.Equal(t, dom.EventScroll, log.last(t).Type)
	assert.Error(t, d.Exec("scroll fast"))
}

func TestNavigateReplacesRoot(t *testing.T) {
	doc, d, _ := newDriverRig(t)
	page := filepath.Join(t.TempDir(), "next.html")
	require.NoError(t, os.WriteFile(page, []byte(`<html><body><p id="fresh">hi</p></body></html>`), 0o644))

	require.NoError(t, d.Exec("navigate "+page))

	assert.Zero(t, doc.ListenerCount(), "navigation drops listeners")
	assert.Error(t, d.Exec("navigate "+filepath.Join(t.TempDir(), "missing.html")))
	assert.Error(t, d.Exec("navigate"))
}

func TestPumpSkipsCommentsAndBadLines(t *testing.T) {
	_, d, log := newDriverRig(t)
	script := strings.NewReader(`
# warm up
move 10 5
bogus command
click

leave
`)
	require.NoError(t, d.Pump(script))

	// move, click, leave survived; the bogus line and blanks were skipped.
	require.Len(t, log.events, 3)
	assert.Equal(t, dom.EventPointerLeave, log.last(t).Type)
	assert.Nil(t, log.last(t).Target)
}
