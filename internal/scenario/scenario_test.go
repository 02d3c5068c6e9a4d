// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package scenario_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/streamkit-oss/streamkit/internal/controlplane"
	"github.com/streamkit-oss/streamkit/internal/engine"
	"github.com/streamkit-oss/streamkit/internal/fabric"
	"github.com/streamkit-oss/streamkit/internal/metrics"
	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/node/builtins"
	"github.com/streamkit-oss/streamkit/internal/packet"
	"github.com/streamkit-oss/streamkit/internal/pipelinecore"
)

// nopObserver discards lifecycle notifications, matching the style of
// internal/engine/engine_test.go and internal/controlplane/controlplane_test.go.
type nopObserver struct{}

func (nopObserver) NodeStateChanged(string, engine.State, engine.StopReason) {}
func (nopObserver) NodeStatsUpdated(string, engine.StatsSnapshot)            {}
func (nopObserver) ConnectionClosed(string, string, string, string)         {}

func newRegistry(t *testing.T) *node.Registry {
	t.Helper()
	reg := node.NewRegistry()
	require.NoError(t, builtins.RegisterAll(reg))
	return reg
}

// latestHolder is satisfied structurally by media::http_output's
// unexported instance type, reached only through node.Instance here —
// Go interface satisfaction does not require the concrete type to be
// exported, only the method set to match.
type latestHolder interface {
	Latest() (packet.Packet, bool)
}

// wireEnvelope mirrors the subset of internal/node/builtins.wireEnvelope
// this test needs to unmarshal the json_serialize sink's output; it is
// not the same Go type, only the same wire shape (spec.md §6).
type wireEnvelope struct {
	FullText string `json:"full_text"`
	Segments []struct {
		Text        string `json:"Text"`
		StartTimeMs int64  `json:"StartTimeMs"`
		EndTimeMs   int64  `json:"EndTimeMs"`
	} `json:"segments"`
}

// S1: file_reader -> ogg_demuxer -> opus_decoder -> whisper_stt ->
// json_serialize -> http_output, run to completion and inspected
// through the sink's actual output rather than just the compiled plan.
func TestScenario_S1_OneshotTranscodeChain(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f, err := os.CreateTemp(t.TempDir(), "clip-*.bin")
	require.NoError(t, err)
	_, err = f.Write([]byte("fake-ogg-opus-payload"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	doc, err := pipelinecore.ParseDocument([]byte(`
mode: oneshot
steps:
  - kind: media::file_reader
    params: { path: ` + f.Name() + ` }
  - kind: audio::ogg::demuxer
  - kind: audio::opus::decoder
  - kind: ml::whisper_stt
  - kind: core::json_serialize
  - kind: media::http_output
`))
	require.NoError(t, err)

	reg := newRegistry(t)
	plan, err := pipelinecore.Compile(doc, reg)
	require.NoError(t, err)
	require.Len(t, plan.Nodes, 6)

	e := engine.New(reg, nopObserver{}, 8, time.Second)
	require.NoError(t, e.Start(context.Background(), plan))
	e.Wait()

	for _, n := range plan.Nodes {
		state, ok := e.NodeState(n.ID)
		require.True(t, ok)
		assert.NotEqual(t, engine.Failed, state, "node %s", n.ID)
	}

	sinkID := plan.Nodes[len(plan.Nodes)-1].ID
	inst, ok := e.Instance(sinkID)
	require.True(t, ok)

	lh, ok := inst.(latestHolder)
	require.True(t, ok, "media::http_output instance must expose Latest()")
	pkt, ok := lh.Latest()
	require.True(t, ok, "sink never received a packet")
	require.NotNil(t, pkt.Binary)

	var env wireEnvelope
	require.NoError(t, json.Unmarshal(pkt.Binary.Data, &env))
	assert.NotEmpty(t, env.FullText)
	require.Len(t, env.Segments, 1)
	assert.Less(t, env.Segments[0].StartTimeMs, env.Segments[0].EndTimeMs)

	require.NoError(t, e.Stop(context.Background()))
}

// S3: a broadcast fan-out from audio::gain to one reliable and one
// best-effort consumer under load; the reliable consumer must receive
// every packet in order, the best-effort (artificially slow) consumer
// must receive a strict subset with no reordering, and the drop must
// be visible on the fabric metric rather than silently lost (spec.md
// §4.4, §8).
func TestScenario_S3_BestEffortFanOutUnderLoad(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reg := node.NewRegistry()
	require.NoError(t, builtins.RegisterAll(reg))
	require.NoError(t, reg.Register(newBurstSourceKind()))
	require.NoError(t, reg.Register(newRecordingSinkKind()))

	const count = 500
	doc, err := pipelinecore.ParseDocument([]byte(fmt.Sprintf(`
mode: dynamic
nodes:
  source:
    kind: test::burst_source
    params: { count: %d }
  gain:
    kind: audio::gain
    params: { factor: 1.0 }
    needs: source
  sink_fast:
    kind: test::recording_sink
    needs: gain
  sink_slow:
    kind: test::recording_sink
    params: { delay_ms: 5 }
    needs: { node: gain, mode: best_effort }
`, count)))
	require.NoError(t, err)

	plan, err := pipelinecore.Compile(doc, reg)
	require.NoError(t, err)

	e := engine.New(reg, nopObserver{}, 4, 2*time.Second)
	require.NoError(t, e.Start(context.Background(), plan))
	e.Wait()

	fastInst, ok := e.Instance("sink_fast")
	require.True(t, ok)
	fast := fastInst.(*recordingSink)

	slowInst, ok := e.Instance("sink_slow")
	require.True(t, ok)
	slow := slowInst.(*recordingSink)

	fastSeqs := fast.received()
	require.Len(t, fastSeqs, count, "reliable consumer must receive every packet")
	for i, seq := range fastSeqs {
		assert.Equal(t, uint64(i), seq, "reliable consumer must preserve FIFO order")
	}

	slowSeqs := slow.received()
	assert.Less(t, len(slowSeqs), count, "best-effort consumer under load must drop some packets")
	assert.NotEmpty(t, slowSeqs, "best-effort consumer must still receive some packets")
	for i := 1; i < len(slowSeqs); i++ {
		assert.Less(t, slowSeqs[i-1], slowSeqs[i], "best-effort consumer must not reorder what it does receive")
	}

	dropped := testutil.ToFloat64(metrics.FabricBestEffortDropsTotal.WithLabelValues("gain", "out"))
	assert.Equal(t, float64(count-len(slowSeqs)), dropped, "drop metric must account for every packet the slow consumer missed")

	require.NoError(t, e.Stop(context.Background()))
}

// S4: a live disconnect/reconnect on a dynamic session observed
// through actual packet delivery, not just control-plane bookkeeping
// (spec.md §4.6, §8). After source->sink_b is disconnected, sink_b
// must stop accumulating packets even though the source keeps
// running; after source->sink_c is connected, sink_c must start
// receiving.
func TestScenario_S4_LiveRewireStopsAndStartsDelivery(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reg := node.NewRegistry()
	require.NoError(t, builtins.RegisterAll(reg))
	require.NoError(t, reg.Register(newTickerSourceKind()))
	require.NoError(t, reg.Register(newRecordingSinkKind()))

	e := engine.New(reg, nopObserver{}, 16, time.Second)
	cp := controlplane.New("s4", e, reg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cp.Run(ctx)

	require.NoError(t, cp.AddNode(ctx, "source", "test::ticker_source", json.RawMessage(`{"interval_ms":1}`)))
	require.NoError(t, cp.AddNode(ctx, "sink_b", "test::recording_sink", nil))
	require.NoError(t, cp.AddNode(ctx, "sink_c", "test::recording_sink", nil))

	require.NoError(t, cp.Connect(ctx, "source", "out", "sink_b", "in", fabric.Reliable))
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, cp.Disconnect(ctx, "source", "out", "sink_b", "in"))

	sinkBInst, ok := e.Instance("sink_b")
	require.True(t, ok)
	sinkB := sinkBInst.(*recordingSink)
	countAtDisconnect := sinkB.count()
	require.Greater(t, countAtDisconnect, 0, "sink_b must have received at least one packet before disconnect")

	require.NoError(t, cp.Connect(ctx, "source", "out", "sink_c", "in", fabric.Reliable))
	time.Sleep(30 * time.Millisecond)

	sinkCInst, ok := e.Instance("sink_c")
	require.True(t, ok)
	sinkC := sinkCInst.(*recordingSink)
	assert.Greater(t, sinkC.count(), 0, "sink_c must start receiving after Connect")

	assert.Equal(t, countAtDisconnect, sinkB.count(), "sink_b must not receive any further packets after Disconnect")

	cp.Close()
	require.NoError(t, e.Stop(context.Background()))
}

// S6 (tune a non-tunable field) is exercised at the control-plane
// boundary by internal/controlplane's
// TestControlPlane_TuneParamsRejectsUntunableNode; this is the
// runtime-observable half: a rejected TuneParams call must leave the
// node's stats untouched, since UpdateParams is never reached.
func TestScenario_S6_RejectedTuneLeavesNodeStatsUntouched(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reg := newRegistry(t)
	e := engine.New(reg, nopObserver{}, 8, time.Second)
	cp := controlplane.New("s6", e, reg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cp.Run(ctx)

	require.NoError(t, cp.AddNode(ctx, "reader", "media::file_reader", json.RawMessage(`{"path":"/dev/null","chunk_size":4096}`)))

	before, ok := e.NodeStats("reader")
	require.True(t, ok)

	err := cp.TuneParams(ctx, "reader", json.RawMessage(`{"chunk_size":8192}`))
	require.Error(t, err, "chunk_size is declared x-tunable:false")
	var notTunable *node.NotTunableError
	require.ErrorAs(t, err, &notTunable)

	after, ok := e.NodeStats("reader")
	require.True(t, ok)
	assert.Equal(t, before, after)

	cp.Close()
	require.NoError(t, e.Stop(context.Background()))
}
