package notify

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
)

func TestWriterNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewWriterNotifier(&buf)

	n.Notify(Success("Signed In", "Welcome Back!"))
	n.Notify(Error("Sign In Failed", ""))
	n.Notify(Info("Pending", "waiting"))

	assert.Equal(t, "[+] Signed In: Welcome Back!\n[!] Sign In Failed\n[i] Pending: waiting\n", buf.String())
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logging.New(&buf, "text", "info"))

	n.Notify(Error("Upload Failed", "keeping previous image"))
	n.Notify(Success("Saved", ""))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "Upload Failed")
	assert.Contains(t, out, "kind=success")
	assert.Equal(t, 2, strings.Count(out, "module=notify"))
}

func TestMulti(t *testing.T) {
	var a, b Recorder
	Multi{&a, &b}.Notify(Info("Pending", "waiting"))

	assert.Equal(t, []Notification{Info("Pending", "waiting")}, a.All())
	assert.Equal(t, a.All(), b.All())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	assert.Equal(t, Notification{}, r.Last())

	r.Notify(Info("a", ""))
	r.Notify(Error("b", "c"))

	assert.Len(t, r.All(), 2)
	assert.Equal(t, KindError, r.Last().Kind)
	assert.Equal(t, "b", r.Last().Title)
}
