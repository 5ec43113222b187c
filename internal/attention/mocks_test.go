package attention

import "time"

// fakeClock advances only when told to, making deadline paths testable.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

// fakeLearner is a canned LearnerModel snapshot.
type fakeLearner struct {
	active       bool
	associations map[string][]Association
	idf          map[string]float64
	neighbors    map[string][]CoactEdge
}

func (l *fakeLearner) Active() bool { return l.active }

func (l *fakeLearner) Query(token string) []Association {
	return l.associations[token]
}

func (l *fakeLearner) IDF(token string) float64 {
	if v, ok := l.idf[token]; ok {
		return v
	}
	return 1.0
}

func (l *fakeLearner) Neighbors(file string) []CoactEdge {
	return l.neighbors[file]
}

// fakePredictor returns canned predictions.
type fakePredictor struct {
	predictions []Prediction
}

func (p *fakePredictor) Predict(prompt string, lastHot []string) []Prediction {
	return p.predictions
}

// fakeRepoMap returns canned outlines.
type fakeRepoMap struct {
	outlines map[string]string
	err      error
}

func (m *fakeRepoMap) Outline(file string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.outlines[file], nil
}

// fakeIndexer returns canned index hits.
type fakeIndexer struct {
	hits []IndexHit
}

func (i *fakeIndexer) Query(prompt string) []IndexHit { return i.hits }
