package x11

import (
	"errors"
	"testing"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/winsync/internal/driver"
)

func TestDiffClients(t *testing.T) {
	known := map[xproto.Window]bool{1: true, 2: true, 3: false}
	added, removed := diffClients(known, []xproto.Window{2, 4, 5, 4})

	if len(added) != 2 || added[0] != 4 || added[1] != 5 {
		t.Fatalf("added = %v, want [4 5]", added)
	}
	if len(removed) != 2 || removed[0] != 1 || removed[1] != 3 {
		t.Fatalf("removed = %v, want [1 3]", removed)
	}
}

func TestDiffClients_NoChange(t *testing.T) {
	known := map[xproto.Window]bool{7: true}
	added, removed := diffClients(known, []xproto.Window{7})
	if len(added) != 0 || len(removed) != 0 {
		t.Fatalf("expected no diff, got added=%v removed=%v", added, removed)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		invalid bool
	}{
		{"bad window", xproto.WindowError{BadValue: 0x400001}, true},
		{"bad drawable", xproto.DrawableError{BadValue: 0x400001}, true},
		{"other", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		got := classifyError("read size of", driver.Handle(0x400001), tt.err)
		if driver.IsInvalidHandle(got) != tt.invalid {
			t.Errorf("%s: IsInvalidHandle(%v) = %v, want %v", tt.name, got, !tt.invalid, tt.invalid)
		}
	}
	if classifyError("read", 1, nil) != nil {
		t.Error("nil error should stay nil")
	}
	transient := driver.Transient(errors.New("timeout"))
	if !driver.IsTransient(classifyError("read", 1, transient)) {
		t.Error("transient error should stay transient")
	}
}

func TestDesktopWire(t *testing.T) {
	if got := desktopFromWire(0xFFFFFFFF); got != driver.StickyDesktop {
		t.Fatalf("desktopFromWire(sticky) = %d", got)
	}
	if got := desktopFromWire(3); got != 3 {
		t.Fatalf("desktopFromWire(3) = %d", got)
	}
	if got := desktopToWire(driver.StickyDesktop); got != 0xFFFFFFFF {
		t.Fatalf("desktopToWire(-1) = %#x", got)
	}
	if got := desktopToWire(2); got != 2 {
		t.Fatalf("desktopToWire(2) = %d", got)
	}
}

func TestIsNormalType(t *testing.T) {
	tests := []struct {
		types []string
		want  bool
	}{
		{nil, true},
		{[]string{"_NET_WM_WINDOW_TYPE_NORMAL"}, true},
		{[]string{"_NET_WM_WINDOW_TYPE_DOCK"}, false},
		{[]string{"_NET_WM_WINDOW_TYPE_DIALOG"}, true},
		{[]string{"_NET_WM_WINDOW_TYPE_NOTIFICATION", "_NET_WM_WINDOW_TYPE_NORMAL"}, false},
	}
	ignore := ignoreSet(DefaultIgnoreTypes)
	for _, tt := range tests {
		if got := isNormalType(tt.types, ignore); got != tt.want {
			t.Errorf("isNormalType(%v) = %v, want %v", tt.types, got, tt.want)
		}
	}
}

func TestIsNormalType_CustomIgnoreList(t *testing.T) {
	ignore := ignoreSet([]string{"_NET_WM_WINDOW_TYPE_DIALOG"})
	if isNormalType([]string{"_NET_WM_WINDOW_TYPE_DIALOG"}, ignore) {
		t.Error("dialog tracked despite being ignored")
	}
	if !isNormalType([]string{"_NET_WM_WINDOW_TYPE_DOCK"}, ignore) {
		t.Error("dock ignored although not listed")
	}
	if !isNormalType([]string{"_NET_WM_WINDOW_TYPE_DOCK"}, ignoreSet(nil)) {
		t.Error("empty ignore list rejected a window")
	}
}
