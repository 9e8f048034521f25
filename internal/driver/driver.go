// File: internal/driver/driver.go
//
// Package driver feeds the host document from a line-oriented command
// stream, standing in for the pointer and keyboard of a live session. One
// line is one interaction.
package driver

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/darkfathom/scribe-cli/api/schemas"
	"github.com/darkfathom/scribe-cli/internal/dom"
)

// Driver translates interaction commands into document events.
//
// Grammar, one command per line ('#' starts a comment):
//
//	move X Y               pointer moves to viewport coordinates
//	leave                  pointer leaves the document
//	click [button] [n]     click at the current pointer position
//	key NAME [mods]        key press, mods like ctrl+shift
//	type TEXT              set the hovered control's value, fire input
//	check / uncheck        set the hovered checkbox's state, fire input
//	select V1,V2           set the hovered select's values, fire input
//	scroll Y               scroll the viewport to offset Y
//	navigate FILE          replace the document with FILE's content
type Driver struct {
	doc *dom.Document
	log *zap.Logger

	x, y float64
}

// New builds a driver over the given document.
func New(doc *dom.Document, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{doc: doc, log: log.Named("driver")}
}

// Pump reads commands from r until EOF. Malformed lines are logged and
// skipped; only I/O errors abort the pump.
func (d *Driver) Pump(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := d.Exec(line); err != nil {
			d.log.Warn("command skipped", zap.String("line", line), zap.Error(err))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read command stream: %w", err)
	}
	return nil
}

// Exec runs a single command line.
func (d *Driver) Exec(line string) error {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "move":
		return d.move(rest)
	case "leave":
		d.doc.Dispatch(&dom.Event{Type: dom.EventPointerLeave})
		return nil
	case "click":
		return d.click(rest)
	case "key":
		return d.key(rest)
	case "type":
		return d.typeText(rest)
	case "check":
		return d.setChecked(true)
	case "uncheck":
		return d.setChecked(false)
	case "select":
		return d.selectValues(rest)
	case "scroll":
		return d.scroll(rest)
	case "navigate":
		return d.navigate(rest)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func (d *Driver) move(args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return fmt.Errorf("move wants X Y, got %q", args)
	}
	x, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return fmt.Errorf("move: bad X %q", fields[0])
	}
	y, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return fmt.Errorf("move: bad Y %q", fields[1])
	}
	d.x, d.y = x, y
	d.doc.Dispatch(&dom.Event{
		Type:   dom.EventPointerMove,
		Target: d.doc.ElementAt(x, y),
		X:      x,
		Y:      y,
	})
	return nil
}

func (d *Driver) click(args string) error {
	button := schemas.ButtonLeft
	count := 1
	fields := strings.Fields(args)
	if len(fields) > 0 {
		switch schemas.MouseButton(fields[0]) {
		case schemas.ButtonLeft, schemas.ButtonMiddle, schemas.ButtonRight:
			button = schemas.MouseButton(fields[0])
		default:
			return fmt.Errorf("click: unknown button %q", fields[0])
		}
	}
	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return fmt.Errorf("click: bad count %q", fields[1])
		}
		count = n
	}
	d.doc.Dispatch(&dom.Event{
		Type:       dom.EventClick,
		Target:     d.doc.ElementAt(d.x, d.y),
		X:          d.x,
		Y:          d.y,
		Button:     button,
		ClickCount: count,
	})
	return nil
}

func (d *Driver) key(args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return fmt.Errorf("key wants a key name")
	}
	mods := schemas.Modifiers(0)
	if len(fields) > 1 {
		m, err := parseModifiers(fields[1])
		if err != nil {
			return err
		}
		mods = m
	}
	d.doc.Dispatch(&dom.Event{
		Type:      dom.EventKeyDown,
		Target:    d.doc.ElementAt(d.x, d.y),
		Key:       fields[0],
		Modifiers: mods,
	})
	return nil
}

func (d *Driver) typeText(text string) error {
	t := d.doc.ElementAt(d.x, d.y)
	if t == nil || !t.IsEditable() {
		return fmt.Errorf("type: no editable element under the pointer")
	}
	t.SetValue(text)
	d.doc.Dispatch(&dom.Event{Type: dom.EventInput, Target: t, X: d.x, Y: d.y})
	return nil
}

func (d *Driver) setChecked(checked bool) error {
	t := d.doc.ElementAt(d.x, d.y)
	if t == nil || !t.IsCheckbox() {
		return fmt.Errorf("check: no checkbox under the pointer")
	}
	t.SetChecked(checked)
	d.doc.Dispatch(&dom.Event{Type: dom.EventInput, Target: t, X: d.x, Y: d.y})
	return nil
}

func (d *Driver) selectValues(args string) error {
	t := d.doc.ElementAt(d.x, d.y)
	if t == nil || !t.IsSelect() {
		return fmt.Errorf("select: no select element under the pointer")
	}
	var values []string
	if args != "" {
		values = strings.Split(args, ",")
	}
	t.SetSelectedValues(values)
	d.doc.Dispatch(&dom.Event{Type: dom.EventInput, Target: t, X: d.x, Y: d.y})
	return nil
}

func (d *Driver) scroll(args string) error {
	y, err := strconv.ParseFloat(strings.TrimSpace(args), 64)
	if err != nil {
		return fmt.Errorf("scroll: bad offset %q", args)
	}
	d.doc.ScrollTo(y)
	d.doc.Dispatch(&dom.Event{Type: dom.EventScroll, Y: y})
	return nil
}

func (d *Driver) navigate(path string) error {
	if path == "" {
		return fmt.Errorf("navigate wants a file path")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	defer f.Close()
	if err := d.doc.ReplaceRoot(f); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	d.log.Info("navigated", zap.String("file", path))
	return nil
}

// parseModifiers parses a '+'-joined modifier list, e.g. "ctrl+shift".
func parseModifiers(s string) (schemas.Modifiers, error) {
	var mods schemas.Modifiers
	for _, part := range strings.Split(s, "+") {
		switch strings.ToLower(part) {
		case "alt":
			mods |= schemas.ModifierAlt
		case "ctrl", "control":
			mods |= schemas.ModifierCtrl
		case "meta", "cmd":
			mods |= schemas.ModifierMeta
		case "shift":
			mods |= schemas.ModifierShift
		default:
			return 0, fmt.Errorf("unknown modifier %q", part)
		}
	}
	return mods, nil
}
