// Package dtmselftest reimplements the bundled self-test generator
// test_dtm_player.rs uses to exercise a DTM server without a real model
// trace: a reproducible, round-robin-interleaved sequence of per-node
// transactions (Input -> N x Internal -> Output), with a trailing
// Input{TaskStop} per node.
package dtmselftest

import (
	"math/rand"

	"github.com/sedeve-kit/dtm/action"
)

const beginTaskID = 20220000

// Generate builds a self-test trace over nodes: numTx independent
// transactions, each with numOps internal operations, interleaved in a
// fair round-robin order and terminated by one Input{TaskStop} per node.
//
// Grounded on test_dtm_player.rs's generate_all_test_message/
// generate_test_message. The third Open Question (possible off-by-one in
// index selection) is resolved here by construction: this reimplementation
// uses rand.Intn(size), a fair pick over the full range, rather than
// porting the Rust gen_range(0..size-1) (which excludes the last index)
// verbatim.
func Generate(nodes []string, numTx, numOps uint64, rnd *rand.Rand) []action.Message {
	if len(nodes) == 0 || numTx == 0 {
		return nil
	}

	txQueues := make([][]action.Message, 0, numTx)
	for i := uint64(0); i < numTx; i++ {
		id := i + beginTaskID
		node := nodes[rnd.Intn(len(nodes))]
		txQueues = append(txQueues, generateTestMessage(node, node, id, numOps))
	}

	ret := make([]action.Message, 0, int(numTx)*(int(numOps)+2)+len(nodes))
	size := len(txQueues)
	for {
		start := rnd.Intn(size)
		numEnd := 0
		found := false
		for i := start; i < start+size; i++ {
			idx := i % size
			if len(txQueues[idx]) == 0 {
				numEnd++
				continue
			}
			ret = append(ret, txQueues[idx][0])
			txQueues[idx] = txQueues[idx][1:]
			found = true
			break
		}
		if !found && numEnd == size {
			break
		}
	}

	for _, node := range nodes {
		ret = append(ret, action.Message{
			Kind: action.Input,
			Action: action.Action{
				Type:    action.Input,
				Source:  node,
				Dest:    node,
				Payload: action.StopMarker,
			},
		})
	}

	return ret
}

// generateTestMessage builds one transaction's action sequence: a TaskNew
// Input, numOps TaskOp Internal actions, and a TaskEnd Output.
func generateTestMessage(from, to string, id, numOps uint64) []action.Message {
	opIDs := make([]any, 0, numOps)
	for i := uint64(0); i < numOps; i++ {
		opIDs = append(opIDs, i+1)
	}

	msgs := make([]action.Message, 0, numOps+2)
	msgs = append(msgs, action.Message{
		Kind: action.Input,
		Action: action.Action{
			Type:   action.Input,
			Source: from,
			Dest:   to,
			Payload: map[string]any{
				"kind":     "task_new",
				"task_id":  id,
				"task_ops": opIDs,
			},
		},
	})

	for _, opID := range opIDs {
		msgs = append(msgs, action.Message{
			Kind: action.Internal,
			Action: action.Action{
				Type:   action.Internal,
				Source: to,
				Dest:   to,
				Payload: map[string]any{
					"kind":    "task_op",
					"task_id": id,
					"task_op": opID,
				},
			},
		})
	}

	msgs = append(msgs, action.Message{
		Kind: action.Output,
		Action: action.Action{
			Type:   action.Output,
			Source: to,
			Dest:   to,
			Payload: map[string]any{
				"kind":    "task_end",
				"task_id": id,
			},
		},
	})

	return msgs
}
