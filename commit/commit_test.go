package commit_test

import (
	"testing"

	"github.com/lofire/broker/commit"
	"github.com/lofire/broker/ids"
	"github.com/stretchr/testify/require"
)

func mkCommit(id byte, branch ids.TopicId, deps ...ids.BlockId) *commit.Commit {
	return &commit.Commit{
		Id: ids.BlockId{id},
		Content: commit.Content{
			Branch: branch,
			Deps:   deps,
		},
	}
}

func TestDAGHeadsAdvanceAsCommitsAreAdded(t *testing.T) {
	branch := ids.TopicId{1}
	d := commit.New()

	c1 := mkCommit(1, branch)
	d.Add(c1)
	require.ElementsMatch(t, []ids.BlockId{c1.Id}, d.Heads(branch))

	c2 := mkCommit(2, branch, c1.Id)
	d.Add(c2)
	require.ElementsMatch(t, []ids.BlockId{c2.Id}, d.Heads(branch))
}

func TestDAGMissingExcludesReachableFromKnownHeads(t *testing.T) {
	branch := ids.TopicId{1}
	d := commit.New()

	c1 := mkCommit(1, branch)
	c2 := mkCommit(2, branch, c1.Id)
	c3 := mkCommit(3, branch, c2.Id)
	d.Add(c1)
	d.Add(c2)
	d.Add(c3)

	missing, err := d.Missing([]ids.BlockId{c3.Id}, []ids.BlockId{c2.Id}, ids.NewBloomFilter(1024, 3))
	require.NoError(t, err)
	require.ElementsMatch(t, []ids.BlockId{c3.Id}, missing)
}

func TestDAGMissingExcludesBloomFilterMatches(t *testing.T) {
	branch := ids.TopicId{1}
	d := commit.New()

	c1 := mkCommit(1, branch)
	c2 := mkCommit(2, branch, c1.Id)
	d.Add(c1)
	d.Add(c2)

	filter := ids.NewBloomFilter(1024, 3)
	filter.Add(c1.Id)

	missing, err := d.Missing([]ids.BlockId{c2.Id}, nil, filter)
	require.NoError(t, err)
	require.ElementsMatch(t, []ids.BlockId{c2.Id}, missing)
}

func TestDAGMissingReturnsEverythingWithNoKnowledge(t *testing.T) {
	branch := ids.TopicId{1}
	d := commit.New()

	c1 := mkCommit(1, branch)
	c2 := mkCommit(2, branch, c1.Id)
	d.Add(c1)
	d.Add(c2)

	missing, err := d.Missing([]ids.BlockId{c2.Id}, nil, ids.NewBloomFilter(1024, 3))
	require.NoError(t, err)
	require.ElementsMatch(t, []ids.BlockId{c1.Id, c2.Id}, missing)
}
