package hw

import "sync"

// Journal keeps the ordered list of commands handed to an Issuer.
type Journal struct {
	mu   sync.Mutex
	cmds []Cmd
}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) record(cmd Cmd) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cmds = append(j.cmds, cmd)
}

func (j *Journal) Cmds() []Cmd {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Cmd, len(j.cmds))
	copy(out, j.cmds)
	return out
}

func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.cmds)
}

// Since returns the commands recorded after the first n.
func (j *Journal) Since(n int) []Cmd {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n >= len(j.cmds) {
		return nil
	}
	if n < 0 {
		n = 0
	}
	out := make([]Cmd, len(j.cmds)-n)
	copy(out, j.cmds[n:])
	return out
}

func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cmds = nil
}
