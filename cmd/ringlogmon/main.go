package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/golang/glog"

	"github.com/robotalks/ringlog/pkg/env"
	"github.com/robotalks/ringlog/pkg/framework"
	"github.com/robotalks/ringlog/pkg/msgs"
	"github.com/robotalks/ringlog/pkg/transport/mqtt"
)

func init() {
	env.SetupFlags()
}

// printer prints chunks as "SOURCE: LINE" and reports sequence gaps.
type printer struct {
	reader  *mqtt.Reader
	lastSeq map[string]uint64
}

func (p *printer) Run(ctx context.Context) error {
	for {
		pkt, err := p.reader.ReadTopicPacket()
		if err != nil {
			return ctx.Err()
		}
		if strings.HasSuffix(pkt.Topic, mqtt.MetaTopicSuffix) {
			source := strings.TrimSuffix(pkt.Topic, mqtt.MetaTopicSuffix)
			if len(pkt.Payload) == 0 {
				glog.Infof("%s: gone", source)
			} else {
				glog.Infof("%s: %s", source, string(pkt.Payload))
			}
			continue
		}
		chunk, err := msgs.DecodeChunk(pkt.Payload)
		if err != nil {
			glog.Warningf("%s: bad chunk: %v", pkt.Topic, err)
			continue
		}
		if last, ok := p.lastSeq[chunk.Source]; ok && chunk.Seq != last+1 {
			glog.Warningf("%s: %d chunk(s) missing", chunk.Source, int64(chunk.Seq-last-1))
		}
		p.lastSeq[chunk.Source] = chunk.Seq
		fmt.Printf("%s: %s", chunk.Source, strings.TrimSuffix(string(chunk.Data), "\n"))
		fmt.Println()
	}
}

func main() {
	flag.Parse()
	defer glog.Flush()

	q, err := mqtt.NewQueueFromURL(env.Default().MQTTBrokerURL)
	if err != nil {
		log.Fatalln(err)
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	defer q.Close()

	logs := mqtt.NewReader(q, "+"+mqtt.LogTopicSuffix)
	metas := mqtt.NewReader(q, "+"+mqtt.MetaTopicSuffix)
	runner := framework.NewRunner().HandleSignals()
	runner.Go(
		framework.NamedRun("logs", logs),
		framework.NamedRun("metas", metas),
		framework.NamedRun("print-logs", &printer{reader: logs, lastSeq: make(map[string]uint64)}),
		framework.NamedRun("print-metas", &printer{reader: metas}),
	)
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
