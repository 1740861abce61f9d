package deps

import (
	"slices"
	"sort"
	"strings"

	"github.com/taskmem/taskmem/internal/task"
)

// Graph represents the dependency relationships between tasks.
//
// It operates on a point-in-time snapshot: nodes are task ids, and a
// directed edge runs from each task to every id in its DependsOn list.
// Tasks are kept in an id-keyed map, so cycles are representable without
// special handling; nothing here assumes the graph is acyclic.
type Graph struct {
	tasks map[string]*task.Task
	ids   []string // sorted, for deterministic traversal
}

// NewGraph creates a Graph from a snapshot of tasks.
func NewGraph(tasks []*task.Task) *Graph {
	g := &Graph{
		tasks: make(map[string]*task.Task, len(tasks)),
	}
	for _, t := range tasks {
		g.tasks[t.ID] = t
	}
	g.ids = make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		g.ids = append(g.ids, id)
	}
	sort.Strings(g.ids)
	return g
}

// Get returns a task by id, or nil.
func (g *Graph) Get(id string) *task.Task {
	return g.tasks[id]
}

// IsBlocked returns true if the task has any dependency that is not done.
// A dangling reference counts as unmet: a dependency that cannot be
// resolved cannot be satisfied either.
func (g *Graph) IsBlocked(id string) bool {
	t := g.tasks[id]
	if t == nil {
		return false
	}
	for _, depID := range t.DependsOn {
		dep := g.tasks[depID]
		if dep == nil || dep.Status != task.StatusDone {
			return true
		}
	}
	return false
}

// BlockedBy returns the ids of direct dependencies that block this task:
// every dependency whose status is not done, including dangling references.
func (g *Graph) BlockedBy(id string) []string {
	t := g.tasks[id]
	if t == nil {
		return nil
	}
	var blockers []string
	for _, depID := range t.DependsOn {
		dep := g.tasks[depID]
		if dep == nil || dep.Status != task.StatusDone {
			blockers = append(blockers, depID)
		}
	}
	return blockers
}

// Ready returns all non-terminal tasks whose dependencies are all done.
// Tasks with no dependencies are trivially ready.
func (g *Graph) Ready() []*task.Task {
	var ready []*task.Task
	for _, id := range g.ids {
		t := g.tasks[id]
		if t.Status.IsTerminal() {
			continue
		}
		if !g.IsBlocked(id) {
			ready = append(ready, t)
		}
	}
	sortByUrgency(ready)
	return ready
}

// Blocked returns all non-terminal tasks with at least one unmet dependency.
func (g *Graph) Blocked() []*task.Task {
	var blocked []*task.Task
	for _, id := range g.ids {
		t := g.tasks[id]
		if t.Status.IsTerminal() {
			continue
		}
		if g.IsBlocked(id) {
			blocked = append(blocked, t)
		}
	}
	sortByUrgency(blocked)
	return blocked
}

// Dependents returns ids of tasks that list the given task directly in
// their depends_on, sorted ascending.
func (g *Graph) Dependents(id string) []string {
	var dependents []string
	for _, tid := range g.ids {
		if slices.Contains(g.tasks[tid].DependsOn, id) {
			dependents = append(dependents, tid)
		}
	}
	return dependents
}

// WouldCreateCycle checks if adding a dependency from -> to would create a
// cycle. Uses BFS from 'to' to see if we can reach 'from'.
func (g *Graph) WouldCreateCycle(from, to string) bool {
	visited := make(map[string]bool)
	queue := []string{to}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == from {
			return true
		}

		if visited[current] {
			continue
		}
		visited[current] = true

		t := g.tasks[current]
		if t == nil {
			continue
		}
		queue = append(queue, t.DependsOn...)
	}
	return false
}

// ValidateAddDep validates adding a dependency from -> to.
func (g *Graph) ValidateAddDep(from, to string) error {
	if g.tasks[from] == nil {
		return UnknownTaskError{ID: from}
	}
	if g.tasks[to] == nil {
		return UnknownTaskError{ID: to}
	}
	if from == to {
		return CycleError{From: from, To: to}
	}
	if g.WouldCreateCycle(from, to) {
		return CycleError{From: from, To: to}
	}
	return nil
}

// DFS coloring states for cycle detection.
const (
	colorWhite = iota // unvisited
	colorGray         // in progress
	colorBlack        // done
)

// DetectCycles returns every distinct cycle in the graph, each as the
// ordered sequence of ids forming the loop. An acyclic graph yields nil.
//
// The search is an iterative depth-first walk with three-state coloring so
// stack depth stays bounded on large graphs. Each cycle is found as a back
// edge into the current path; cycles are normalized (rotated to start at
// their smallest id) to de-duplicate across entry points.
func (g *Graph) DetectCycles() [][]string {
	color := make(map[string]int, len(g.ids))
	seen := make(map[string]bool)
	var cycles [][]string

	type frame struct {
		id   string
		next int
	}

	for _, start := range g.ids {
		if color[start] != colorWhite {
			continue
		}
		color[start] = colorGray
		stack := []frame{{id: start}}
		path := []string{start}

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			deps := g.tasks[f.id].DependsOn
			if f.next < len(deps) {
				dep := deps[f.next]
				f.next++
				if g.tasks[dep] == nil {
					continue // dangling reference, no edge
				}
				switch color[dep] {
				case colorWhite:
					color[dep] = colorGray
					stack = append(stack, frame{id: dep})
					path = append(path, dep)
				case colorGray:
					// Back edge: the loop runs from dep's position to the
					// top of the current path.
					idx := len(path) - 1
					for idx >= 0 && path[idx] != dep {
						idx--
					}
					cycle := normalizeCycle(path[idx:])
					key := strings.Join(cycle, ",")
					if !seen[key] {
						seen[key] = true
						cycles = append(cycles, cycle)
					}
				}
			} else {
				color[f.id] = colorBlack
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
			}
		}
	}
	return cycles
}

// TopologicalSort returns an ordering of all task ids where every
// dependency appears before its dependents. It fails with
// CyclicDependencyError if the graph contains any cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	unmet := make(map[string]int, len(g.ids))
	dependents := make(map[string][]string)
	for _, id := range g.ids {
		for _, dep := range g.tasks[id].DependsOn {
			if g.tasks[dep] == nil {
				continue // dangling references order nothing
			}
			unmet[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	// Kahn's algorithm, wave by wave; sorting each wave keeps the output
	// deterministic for a given task set.
	var ready []string
	for _, id := range g.ids {
		if unmet[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.ids))
	for len(ready) > 0 {
		sort.Strings(ready)
		var next []string
		for _, id := range ready {
			order = append(order, id)
			for _, d := range dependents[id] {
				unmet[d]--
				if unmet[d] == 0 {
					next = append(next, d)
				}
			}
		}
		ready = next
	}

	if len(order) != len(g.ids) {
		emitted := make(map[string]bool, len(order))
		for _, id := range order {
			emitted[id] = true
		}
		var remaining []string
		for _, id := range g.ids {
			if !emitted[id] {
				remaining = append(remaining, id)
			}
		}
		return nil, CyclicDependencyError{Remaining: remaining}
	}
	return order, nil
}

// CriticalPath returns the dependency chain with the largest cumulative
// estimated hours, ordered from its deepest dependency to its final
// dependent. Tasks without an estimate count as zero. Fails with
// CyclicDependencyError on a cyclic graph.
func (g *Graph) CriticalPath() ([]string, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return nil, nil
	}

	longest := make(map[string]float64, len(order))
	pred := make(map[string]string, len(order))

	// Dynamic programming over the topological order:
	// longest[v] = hours(v) + max(longest[u] for u in depends_on(v)).
	for _, id := range order {
		best := 0.0
		bestPred := ""
		deps := slices.Clone(g.tasks[id].DependsOn)
		sort.Strings(deps)
		for _, dep := range deps {
			if g.tasks[dep] == nil {
				continue
			}
			// Ties keep the smallest id, so the chosen chain is stable.
			if bestPred == "" || longest[dep] > best {
				best = longest[dep]
				bestPred = dep
			}
		}
		longest[id] = estimate(g.tasks[id]) + best
		if bestPred != "" {
			pred[id] = bestPred
		}
	}

	end := order[0]
	for _, id := range order[1:] {
		if longest[id] > longest[end] || (longest[id] == longest[end] && id < end) {
			end = id
		}
	}

	var path []string
	for id := end; id != ""; id = pred[id] {
		path = append(path, id)
	}
	slices.Reverse(path)
	return path, nil
}

// BlockingTasks returns the direct dependencies of id whose status is not
// done, including dangling references.
func (g *Graph) BlockingTasks(id string) []string {
	return g.BlockedBy(id)
}

// Impact describes which tasks are affected when a task slips or changes.
type Impact struct {
	DirectlyAffected   []string
	IndirectlyAffected []string
}

// ImpactAnalysis walks dependent edges transitively from id. Direct means
// the task lists id in its own depends_on; indirect is everything further
// downstream.
func (g *Graph) ImpactAnalysis(id string) Impact {
	direct := g.Dependents(id)
	directSet := make(map[string]bool, len(direct))
	for _, d := range direct {
		directSet[d] = true
	}

	visited := map[string]bool{id: true}
	queue := slices.Clone(direct)
	var indirect []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		if !directSet[current] && current != id {
			indirect = append(indirect, current)
		}
		queue = append(queue, g.Dependents(current)...)
	}
	sort.Strings(indirect)
	return Impact{DirectlyAffected: direct, IndirectlyAffected: indirect}
}

// normalizeCycle rotates a cycle so it starts at its smallest id.
func normalizeCycle(cycle []string) []string {
	minIdx := 0
	for i, id := range cycle {
		if id < cycle[minIdx] {
			minIdx = i
		}
	}
	rotated := make([]string, 0, len(cycle))
	rotated = append(rotated, cycle[minIdx:]...)
	rotated = append(rotated, cycle[:minIdx]...)
	return rotated
}

func estimate(t *task.Task) float64 {
	if t.EstimatedHours == nil {
		return 0
	}
	return *t.EstimatedHours
}

// sortByUrgency orders by priority, then creation time, then id.
func sortByUrgency(tasks []*task.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		pi, pj := task.PriorityOrder(tasks[i].Priority), task.PriorityOrder(tasks[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return task.Less(tasks[i], tasks[j], "created_at")
	})
}
