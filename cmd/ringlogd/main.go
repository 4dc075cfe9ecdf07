package main

//go-build: CGO_ENABLED=0

import (
	"bufio"
	"context"
	"flag"
	"io"
	"log"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/ringlog/pkg/env"
	"github.com/robotalks/ringlog/pkg/framework"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	p := env.NewConfig().MustNewPipeline()
	defer p.Close()

	runner := framework.NewRunner().HandleSignals()
	loop := framework.NewLoop().WithInterval(p.Scheduler.Period).Add(p.Scheduler)
	stdin := framework.RunFunc(func(ctx context.Context) error {
		return framework.RunWithContextCloser(ctx, os.Stdin, func() error {
			_, err := io.Copy(p.Console, bufio.NewReader(os.Stdin))
			glog.Info("stdin closed")
			return err
		})
	})
	runner.Go(
		framework.NamedRun("drain", loop),
		runner.StopOnExit(framework.NamedRun("stdin", stdin)),
	)

	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
	glog.Infof("drain loop: %d iteration(s), %d overrun(s)", loop.Iterations(), loop.Overruns())
	st := p.Scheduler.Stats()
	glog.Infof("sent %d byte(s) in %d drain(s), %d dropped, %d left",
		st.Sent, st.Drains, p.Scheduler.Buffer.Dropped(), p.Scheduler.Buffer.Len())
}
