// Package replay implements a capture driver that plays back image files from a directory,
// paced to a frame rate. In watch mode it keeps running and plays files as they are added.
package replay

import (
	"context"
	"image"
	// register decoders for the formats replay accepts.
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	_ "github.com/lmittmann/ppm" // register ppm
	"github.com/pkg/errors"
	_ "github.com/xfmoulet/qoi" // register qoi
	goutils "go.viam.com/utils"
	_ "golang.org/x/image/bmp"  // register bmp
	_ "golang.org/x/image/tiff" // register tiff
	_ "golang.org/x/image/webp" // register webp
	"golang.org/x/time/rate"

	"go.viam.com/livevision/components/camera"
	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/registry"
	"go.viam.com/livevision/rimage"
)

// ModelName is the registered source type.
const ModelName = "replay"

// settleDelay is how long a watched directory must be quiet before new files are played, so that
// files still being written are not decoded half way.
var settleDelay = 50 * time.Millisecond

func init() {
	registry.RegisterSource(ModelName, registry.NewSourceRegistration(
		func(ctx context.Context, conf *Config, logger logging.Logger) (*Replay, error) {
			return NewReplay(conf, logger), nil
		}))
}

// Config are the attributes of a replay source.
type Config struct {
	Dir       string  `json:"dir"`
	Glob      string  `json:"glob,omitempty"`
	FrameRate float64 `json:"frame_rate,omitempty"`
	Loop      bool    `json:"loop,omitempty"`
	Watch     bool    `json:"watch,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Dir == "" {
		return errors.Errorf("%s: %q is required", path, "dir")
	}
	if conf.FrameRate < 0 {
		return errors.Errorf("%s: frame_rate must not be negative", path)
	}
	if conf.Loop && conf.Watch {
		return errors.Errorf("%s: loop and watch cannot both be set", path)
	}
	if _, err := filepath.Match(conf.glob(), "x"); err != nil {
		return errors.Wrapf(err, "%s: bad glob %q", path, conf.Glob)
	}
	return nil
}

func (conf *Config) glob() string {
	if conf.Glob == "" {
		return "*"
	}
	return conf.Glob
}

// Replay plays image files in name order.
type Replay struct {
	conf   Config
	logger logging.Logger

	mu      sync.Mutex
	files   []string
	next    int
	limiter *rate.Limiter
	watcher *fsnotify.Watcher
	added   chan string
	served  map[string]bool
	workers sync.WaitGroup
}

// NewReplay returns a closed replay source.
func NewReplay(conf *Config, logger logging.Logger) *Replay {
	return &Replay{conf: *conf, logger: logger}
}

// Open lists the files to play and, in watch mode, starts watching the directory.
func (r *Replay) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	files, err := filepath.Glob(filepath.Join(r.conf.Dir, r.conf.glob()))
	if err != nil {
		return err
	}
	files = filterRegular(files)
	sort.Strings(files)
	if len(files) == 0 && !r.conf.Watch {
		return errors.Errorf("no files match %s", filepath.Join(r.conf.Dir, r.conf.glob()))
	}
	r.files = files
	r.next = 0
	r.served = map[string]bool{}
	r.limiter = nil
	if r.conf.FrameRate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(r.conf.FrameRate), 1)
	}
	if r.conf.Watch {
		return r.startWatching()
	}
	return nil
}

func filterRegular(files []string) []string {
	out := files[:0]
	for _, f := range files {
		if info, err := os.Stat(f); err == nil && info.Mode().IsRegular() {
			out = append(out, f)
		}
	}
	return out
}

// startWatching assumes the lock is held.
func (r *Replay) startWatching() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "cannot watch for new files")
	}
	if err := watcher.Add(r.conf.Dir); err != nil {
		goutils.UncheckedError(watcher.Close())
		return errors.Wrapf(err, "cannot watch %s", r.conf.Dir)
	}
	r.watcher = watcher
	added := make(chan string, 64)
	r.added = added
	var pendingMu sync.Mutex
	pending := map[string]struct{}{}
	flush := func() {
		pendingMu.Lock()
		names := make([]string, 0, len(pending))
		for name := range pending {
			names = append(names, name)
		}
		pending = map[string]struct{}{}
		pendingMu.Unlock()
		sort.Strings(names)
		for _, name := range names {
			select {
			case added <- name:
			default:
				r.logger.Warnw("dropping file event, reader is behind", "file", name)
			}
		}
	}
	settled := debounce.New(settleDelay)

	r.workers.Add(1)
	goutils.ManagedGo(func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
					continue
				}
				if match, _ := filepath.Match(r.conf.glob(), filepath.Base(ev.Name)); !match {
					continue
				}
				pendingMu.Lock()
				pending[ev.Name] = struct{}{}
				pendingMu.Unlock()
				settled(flush)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Debugw("watch error", "error", err)
			}
		}
	}, r.workers.Done)
	return nil
}

// Read returns the next file's image, waiting for the frame rate and, in watch mode, for new files.
func (r *Replay) Read(ctx context.Context) (image.Image, error) {
	name, err := r.nextFile(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	limiter := r.limiter
	r.mu.Unlock()
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	img, err := decodeFile(name)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.served != nil {
		r.served[name] = true
	}
	r.mu.Unlock()
	return img, nil
}

func (r *Replay) nextFile(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.files == nil && r.served == nil {
		r.mu.Unlock()
		return "", errors.New("replay is not open")
	}
	if r.next >= len(r.files) && r.conf.Loop && len(r.files) > 0 {
		r.next = 0
	}
	if r.next < len(r.files) {
		name := r.files[r.next]
		r.next++
		r.mu.Unlock()
		return name, nil
	}
	added := r.added
	r.mu.Unlock()
	if added == nil {
		return "", io.EOF
	}
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case name, ok := <-added:
			if !ok {
				return "", io.EOF
			}
			r.mu.Lock()
			seen := r.served[name]
			r.mu.Unlock()
			if !seen {
				return name, nil
			}
		}
	}
}

func decodeFile(name string) (*rimage.ImageBuffer, error) {
	//nolint:gosec
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode %s", name)
	}
	return rimage.FromImage(img, time.Now())
}

// Close stops watching. Files are not held open between reads.
func (r *Replay) Close(ctx context.Context) error {
	r.mu.Lock()
	watcher := r.watcher
	r.watcher = nil
	r.added = nil
	r.files = nil
	r.served = nil
	r.mu.Unlock()
	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	r.workers.Wait()
	return err
}

var _ camera.Driver = (*Replay)(nil)
