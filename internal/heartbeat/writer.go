package heartbeat

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Writer emits a heartbeat log in the column layout Parse reads. Windowed
// and accuracy columns are not tracked and are written as zero.
type Writer struct {
	Path string

	f    *os.File
	buf  *bufio.Writer
	beat uint64
}

func Create(dir string, profiler string) (*Writer, error) {
	path := filepath.Join(dir, FileName(profiler))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create heartbeat log: %w", err)
	}

	w := &Writer{Path: path, f: f, buf: bufio.NewWriter(f)}
	if _, err := w.buf.WriteString(strings.Join(Header, " ") + "\n"); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) Write(tag uint64, work uint64, iv Interval) error {
	instantPerf, instantPwr := 0.0, 0.0
	if d := iv.Duration(); d > 0 {
		instantPerf = float64(work) / (float64(d) / 1e9)
		instantPwr = float64(iv.Energy()) / (float64(d) / 1000.0)
	}

	_, err := fmt.Fprintf(w.buf, "%d %d %d 0 0 0 %.6f %d %d 0 0 0 0 0 %d %d %.6f\n",
		w.beat, tag, work, instantPerf, iv.StartTime, iv.EndTime, iv.StartEnergy, iv.EndEnergy, instantPwr)
	if err != nil {
		return err
	}
	w.beat++
	return nil
}

func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// WriteLog writes every interval of l to dir as heartbeat-<profiler>.log.
func WriteLog(dir string, l *Log) (string, error) {
	w, err := Create(dir, l.Profiler)
	if err != nil {
		return "", err
	}
	for i, iv := range l.Intervals {
		if err := w.Write(uint64(i), 1, iv); err != nil {
			w.Close()
			return "", err
		}
	}
	return w.Path, w.Close()
}
