// Command kad is an interactive shell for spawning and driving local
// Kademlia nodes, the REPL wrapper described by original_source's
// Runtime (spawn/list/select/ping/find/get/history/help) and supplemented
// here since building it is the only way to exercise the dispatcher
// end-to-end from a binary. It contains no protocol logic of its own:
// every command is a thin call into pkg/node, whose FindNode and
// FindValue run the pkg/lookup search.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/mod/kadnet/pkg/config"
	"github.com/mod/kadnet/pkg/id"
	"github.com/mod/kadnet/pkg/klog"
	"github.com/mod/kadnet/pkg/node"
	"github.com/mod/kadnet/pkg/peer"
	"github.com/mod/kadnet/pkg/rpc"
)

// historyCap bounds the in-memory ring of issued commands; original_source
// stubs "history" with an empty match arm, so the ring itself and its
// obvious meaning (print the last N lines typed) are this module's own.
const historyCap = 100

// runtime tracks every locally spawned node and which one is selected,
// mirroring original_source/src/cli.rs's Runtime.
type runtime struct {
	mu       sync.Mutex
	nodes    []*node.Node
	selected *node.Node
	history  []string
}

func newRuntime() *runtime {
	return &runtime{}
}

func (r *runtime) spawn(addr string) error {
	cfg := config.Default()
	cfg.Address = addr

	n, err := node.New(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	go func() {
		if err := n.Start(ctx); err != nil {
			klog.ForNode(n.Local().Id).WithError(err).Warn("kad: node stopped")
		}
	}()

	r.mu.Lock()
	r.nodes = append(r.nodes, n)
	if r.selected == nil {
		r.selected = n
	}
	r.mu.Unlock()

	fmt.Printf("spawned %s at %s\n", n.Local().Id.Hex(), n.Local().Address)
	return nil
}

func (r *runtime) list() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.nodes {
		sep := ' '
		if r.selected == n {
			sep = 'x'
		}
		fmt.Printf("[%c] %s (%s)\n", sep, n.Local().Id.Hex(), n.Local().Address)
	}
}

func (r *runtime) selectNode(hex string) {
	target, err := id.Parse(hex)
	if err != nil {
		fmt.Println("< invalid id:", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.nodes {
		if n.Local().Id.Equal(target) {
			r.selected = n
			return
		}
	}
	fmt.Println("< unable to find node id")
}

func (r *runtime) current() (*node.Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected, r.selected != nil
}

func (r *runtime) recordHistory(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, line)
	if len(r.history) > historyCap {
		r.history = r.history[len(r.history)-historyCap:]
	}
}

func (r *runtime) printHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range r.history {
		fmt.Println(line)
	}
}

func (r *runtime) ping(addr string) {
	n, ok := r.current()
	if !ok {
		fmt.Println("< no node selected")
		return
	}
	dest := peer.Info{Address: addr}
	resp, ok := n.Send(context.Background(), rpc.RequestPayload{Kind: rpc.KindPing}, dest)
	if !ok {
		fmt.Println("< timed out")
		return
	}
	fmt.Println("< got", resp.Kind)
}

func (r *runtime) find(hex string) {
	n, ok := r.current()
	if !ok {
		fmt.Println("< no node selected")
		return
	}
	target, err := id.Parse(hex)
	if err != nil {
		fmt.Println("< invalid id:", err)
		return
	}
	closest := n.FindNode(context.Background(), target)
	for _, p := range closest {
		fmt.Printf("  %s (%s)\n", p.Id.Hex(), p.Address)
	}
}

func (r *runtime) get(key string) {
	n, ok := r.current()
	if !ok {
		fmt.Println("< no node selected")
		return
	}
	result := n.FindValue(context.Background(), key)
	if result.Found {
		fmt.Println("< value:", result.Value)
		return
	}
	fmt.Println("< not found, closest:")
	for _, p := range result.Closest {
		fmt.Printf("  %s (%s)\n", p.Id.Hex(), p.Address)
	}
}

func help() {
	fmt.Println(`commands:
  spawn <ip> <port>   start a new local node
  list                list spawned nodes, x marks the selected one
  select <id>         select a node by its hex id
  ping <addr>         ping an address from the selected node
  find <id>           iteratively look up the closest nodes to an id
  get <key>           iteratively look up a stored value
  history             show the commands issued this session
  help                show this message`)
}

func main() {
	r := newRuntime()
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			r.recordHistory(line)
		}
		args := strings.Fields(line)

		if len(args) == 0 {
			fmt.Print("> ")
			continue
		}

		switch args[0] {
		case "spawn":
			if len(args) != 3 {
				help()
				break
			}
			if _, err := strconv.Atoi(args[2]); err != nil {
				fmt.Println("< invalid port:", err)
				break
			}
			if err := r.spawn(args[1] + ":" + args[2]); err != nil {
				fmt.Println("< spawn failed:", err)
			}
		case "list":
			r.list()
		case "select":
			if len(args) != 2 {
				help()
				break
			}
			r.selectNode(args[1])
		case "ping":
			if len(args) != 2 {
				help()
				break
			}
			r.ping(args[1])
		case "find":
			if len(args) != 2 {
				help()
				break
			}
			r.find(args[1])
		case "get":
			if len(args) != 2 {
				help()
				break
			}
			r.get(args[1])
		case "history":
			r.printHistory()
		case "help":
			help()
		default:
			fmt.Printf("< invalid command %q\n", args[0])
		}

		fmt.Print("> ")
	}
}
