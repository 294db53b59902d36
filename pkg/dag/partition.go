package dag

// Partition assigns every REACTION node a worker lane and release
// value. Any assignment respecting the DAG's precedence is correct;
// this one deals reactions round-robin in topological order, which
// keeps lanes roughly even without attempting load balancing. Release
// values count up 1, 2, 3, ... per worker in topological order, so a
// later reaction on the same worker always publishes a larger value.
func Partition(d *Dag, workers int) {
	if workers < 1 {
		workers = 1
	}
	next := 0
	releaseValues := make([]int64, workers)
	for _, n := range d.TopologicalSort() {
		if n.Type != Reaction {
			continue
		}
		n.Worker = next % workers
		next++
		releaseValues[n.Worker]++
		n.ReleaseValue = releaseValues[n.Worker]
	}
}

// AssociatedSyncOf returns the nearest transitively upstream SYNC node
// of n, searching predecessors depth first. REACTION nodes record this
// at generation time; the search exists for verification and for
// nodes built by hand in tests.
func (d *Dag) AssociatedSyncOf(n *Node) *Node {
	if n.Type == Sync {
		return n
	}
	for _, up := range d.UpstreamOf(n) {
		if s := d.AssociatedSyncOf(up); s != nil {
			return s
		}
	}
	return nil
}
