package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/ringlog/pkg/env"
	"github.com/robotalks/ringlog/pkg/ringlog"
)

// Shell provides an ishell backed console over a log pipeline.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell    *ishell.Shell
	Pipeline *env.Pipeline

	lock   sync.Mutex
	cancel func()
	done   chan error
}

// Status is what the stats command prints.
type Status struct {
	Mode    string        `json:"mode"`
	Len     int           `json:"len"`
	Cap     int           `json:"cap"`
	Dropped uint64        `json:"dropped"`
	Running bool          `json:"running"`
	Stats   ringlog.Stats `json:"stats"`
}

const (
	shellKey      = "$shell"
	pausedPrompt  = "[paused] > "
	runningPrompt = "[running] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	commands = []*ishell.Cmd{
		&LogCmd,
		&DrainCmd,
		&FlushCmd,
		&StatsCmd,
		&ModeCmd,
		&StartCmd,
		&StopCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// New creates a new shell.
func New(p *env.Pipeline) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:    ishell.New(),
		Pipeline: p,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(pausedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Log writes text as a line through the console.
func (s *Shell) Log(text string) {
	s.Pipeline.Console.WriteString(text + "\n")
}

// Status collects the state of the pipeline.
func (s *Shell) Status() Status {
	sched := s.Pipeline.Scheduler
	s.lock.Lock()
	running := s.cancel != nil
	s.lock.Unlock()
	return Status{
		Mode:    s.Pipeline.Console.Mode().String(),
		Len:     sched.Buffer.Len(),
		Cap:     sched.Buffer.Cap(),
		Dropped: sched.Buffer.Dropped(),
		Running: running,
		Stats:   sched.Stats(),
	}
}

// Format renders a value per OutputJSON.
func (s *Shell) Format(v interface{}) (string, error) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		return string(out), err
	}
	if st, ok := v.(Status); ok {
		return fmt.Sprintf("mode=%s len=%d/%d dropped=%d running=%v drains=%d sent=%d busy=%d skipped=%d",
			st.Mode, st.Len, st.Cap, st.Dropped, st.Running,
			st.Stats.Drains, st.Stats.Sent, st.Stats.Busy, st.Stats.Skipped), nil
	}
	return fmt.Sprint(v), nil
}

// Start runs the scheduler in background.
func (s *Shell) Start() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel, s.done = cancel, make(chan error, 1)
	go func(done chan error) {
		done <- s.Pipeline.Scheduler.Run(ctx)
	}(s.done)
	s.setPrompt(runningPrompt)
	return true
}

// Stop stops the background scheduler, which flushes before it returns.
func (s *Shell) Stop() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
	s.setPrompt(pausedPrompt)
	return true
}

func (s *Shell) setPrompt(prompt string) {
	if s.Shell != nil {
		s.Shell.SetPrompt(prompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer s.Stop()
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func (s *Shell) println(c *ishell.Context, v interface{}) {
	out, err := s.Format(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(out)
}

var (
	// LogCmd writes a line of log.
	LogCmd = ishell.Cmd{
		Name:    "log",
		Aliases: []string{"l"},
		Help:    "TEXT...",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Log(strings.Join(c.Args, " "))
		},
	}

	// DrainCmd runs one drain.
	DrainCmd = ishell.Cmd{
		Name:    "drain",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			s.println(c, s.Pipeline.Scheduler.Tick())
		},
	}

	// FlushCmd drains until empty or the sink is busy.
	FlushCmd = ishell.Cmd{
		Name:    "flush",
		Aliases: []string{"f"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			s.println(c, s.Pipeline.Scheduler.Flush(context.Background()))
		},
	}

	// StatsCmd prints the status.
	StatsCmd = ishell.Cmd{
		Name:    "stats",
		Aliases: []string{"s"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			s.println(c, s.Status())
		},
	}

	// ModeCmd prints or sets the console mode.
	ModeCmd = ishell.Cmd{
		Name:    "mode",
		Aliases: []string{"m"},
		Help:    "[off|async|sync]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				mode, err := ringlog.ParseMode(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				s.Pipeline.Console.SetMode(mode)
			}
			s.println(c, s.Pipeline.Console.Mode().String())
		},
	}

	// StartCmd starts periodic draining.
	StartCmd = ishell.Cmd{
		Name: "start",
		Help: "",
		Func: func(c *ishell.Context) {
			if !ShellFrom(c).Start() {
				c.Err(fmt.Errorf("already running"))
			}
		},
	}

	// StopCmd stops periodic draining.
	StopCmd = ishell.Cmd{
		Name: "stop",
		Help: "",
		Func: func(c *ishell.Context) {
			if !ShellFrom(c).Stop() {
				c.Err(fmt.Errorf("not running"))
			}
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	p := env.NewConfig().MustNewPipeline()
	defer p.Close()
	New(p).Run(flag.Args()...)
}
