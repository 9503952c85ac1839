package cells_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/scrna/cells"
	"github.com/grailbio/scrna/umi"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func testOpts() cells.Opts {
	opts := cells.DefaultOpts
	opts.MinGenesBeforeMerge = 1
	opts.MinGenesAfterMerge = 1
	opts.Parallelism = 2
	return opts
}

// addCell adds one read for every (gene, UMI) pair.
func addCell(t *testing.T, c *cells.Container, cb string, genes, umis []string) int {
	id := -1
	for _, gene := range genes {
		for _, u := range umis {
			var err error
			id, err = c.AddRecord(cb, u, gene, umi.HasExons)
			assert.NoError(t, err)
		}
	}
	return id
}

func genes(n int) []string {
	var g []string
	for i := 0; i < n; i++ {
		g = append(g, fmt.Sprintf("gene%02d", i))
	}
	return g
}

func TestAddRecord(t *testing.T) {
	c := cells.NewContainer(nil, nil, testOpts())
	id1, err := c.AddRecord("AAAAAAAA", "ACGTAC", "gene1", umi.HasExons)
	assert.NoError(t, err)
	id2, err := c.AddRecord("AAAAAAAA", "ACGTAC", "gene1", umi.HasIntrons)
	assert.NoError(t, err)
	expect.EQ(t, id1, id2)
	expect.EQ(t, c.NumCells(), 1)

	rec := c.CellGenes(id1)["gene1"]["ACGTAC"]
	expect.EQ(t, rec.ReadCount, 2)
	expect.EQ(t, rec.Mark, umi.HasExons|umi.HasIntrons)
	expect.EQ(t, c.CellReads(id1), 2)
	expect.EQ(t, c.CellSize(id1), 1)
	expect.EQ(t, c.HasExonReadsNum(), 1)
	expect.EQ(t, c.HasIntronReadsNum(), 1)
	expect.EQ(t, c.HasNotAnnotatedReadsNum(), 0)
	expect.EQ(t, c.Stats().Reads, 2)

	_, err = c.AddRecord("", "ACGTAC", "gene1", umi.HasExons)
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestAddRecordQuality(t *testing.T) {
	opts := testOpts()
	opts.QualityLength = 4
	c := cells.NewContainer(nil, nil, opts)
	expect.EQ(t, c.QualityLength(), 4)
	_, err := c.AddRecordQuality("AAAAAAAA", "ACGTAC", "gene1", umi.HasExons, "+5?I")
	assert.NoError(t, err)
	_, err = c.AddRecordQuality("AAAAAAAA", "ACGTAC", "gene1", umi.HasExons, "5?I+")
	assert.NoError(t, err)
	// Qualities past QualityLength are dropped.
	_, err = c.AddRecordQuality("AAAAAAAA", "ACGTAC", "gene1", umi.HasExons, "IIIIII")
	assert.NoError(t, err)

	rec := c.CellGenes(0)["gene1"]["ACGTAC"]
	expect.EQ(t, rec.ReadCount, 3)
	expect.EQ(t, rec.SumQuality, []uint32{10 + 20 + 40, 20 + 30 + 40, 30 + 40 + 40, 40 + 10 + 40})
	expect.EQ(t, rec.MeanQuality(), []float64{70.0 / 3, 30, 110.0 / 3, 30})

	// Without QualityLength the qualities are ignored.
	plain := cells.NewContainer(nil, nil, testOpts())
	_, err = plain.AddRecordQuality("AAAAAAAA", "ACGTAC", "gene1", umi.HasExons, "IIIIII")
	assert.NoError(t, err)
	expect.True(t, plain.CellGenes(0)["gene1"]["ACGTAC"].MeanQuality() == nil)
}

func TestCapacity(t *testing.T) {
	opts := testOpts()
	opts.MaxCellsNum = 1
	c := cells.NewContainer(nil, nil, opts)
	_, err := c.AddRecord("AAAAAAAA", "ACGTAC", "gene1", umi.HasExons)
	assert.NoError(t, err)
	_, err = c.AddRecord("CCCCCCCC", "ACGTAC", "gene1", umi.HasExons)
	expect.EQ(t, err, cells.ErrCapacityExceeded)
	_, err = c.AddRecord("AAAAAAAA", "ACGTAC", "gene2", umi.HasExons)
	assert.NoError(t, err)

	expect.EQ(t, c.NumCells(), 1)
	expect.EQ(t, c.CellReads(0), 2)
	expect.EQ(t, c.Stats().DroppedReads, 1)
	expect.EQ(t, c.Stats().Reads, 2)
	_, ok := c.CellID("CCCCCCCC")
	expect.False(t, ok)
}

func TestQueriesBeforeInit(t *testing.T) {
	c := cells.NewContainer(nil, nil, testOpts())
	addCell(t, c, "AAAAAAAA", genes(2), []string{"ACGTAC"})

	_, err := c.FilteredCells()
	expect.True(t, errors.Is(errors.Precondition, err))
	_, err = c.CellsGeneCountsSorted()
	expect.True(t, errors.Is(errors.Precondition, err))
	_, err = c.NumberOfRealCells()
	expect.True(t, errors.Is(errors.Precondition, err))
	_, err = c.UMIsDistribution()
	expect.True(t, errors.Is(errors.Precondition, err))

	assert.NoError(t, c.MergeAndFilter())
	n, err := c.NumberOfRealCells()
	assert.NoError(t, err)
	expect.EQ(t, n, 1)

	expect.True(t, errors.Is(errors.Precondition, c.MergeAndFilter()))
	_, err = c.AddRecord("AAAAAAAA", "ACGTAC", "gene1", umi.HasExons)
	expect.True(t, errors.Is(errors.Precondition, err))
	n, err = c.NumberOfRealCells()
	assert.NoError(t, err)
	expect.EQ(t, n, 1)
}

func TestMergeCellsStateMachine(t *testing.T) {
	c := cells.NewContainer(nil, nil, testOpts())
	a := addCell(t, c, "AAAAAAAA", genes(3), []string{"ACGTAC", "TTTTTT"})
	b := addCell(t, c, "AAAAAAAT", genes(2), []string{"ACGTAC", "GGGGGG"})
	x := addCell(t, c, "CCCCCCCC", genes(1), []string{"ACGTAC"})
	y := addCell(t, c, "GGGGGGGG", genes(1), []string{"ACGTAC"})

	expect.True(t, errors.Is(errors.Precondition, c.MergeCells(a, a)))

	assert.NoError(t, c.ExcludeCell(x))
	assert.NoError(t, c.ExcludeCell(x))
	expect.True(t, errors.Is(errors.Precondition, c.MergeCells(x, a)))
	expect.True(t, errors.Is(errors.Precondition, c.MergeCells(a, x)))
	expect.True(t, errors.Is(errors.Invalid, c.MergeCells(a, 100)))

	assert.NoError(t, c.MergeCells(b, a))
	expect.True(t, c.IsCellMerged(b))
	expect.EQ(t, c.CellSize(b), 0)
	expect.EQ(t, c.CellReads(b), 0)
	expect.EQ(t, c.CellReads(a), 3*2+2*2)
	// gene00 and gene01 share ACGTAC; GGGGGG is new.
	expect.EQ(t, c.CellGenes(a)["gene00"]["ACGTAC"].ReadCount, 2)
	expect.EQ(t, c.CellGenes(a)["gene00"]["GGGGGG"].ReadCount, 1)
	expect.EQ(t, c.CellSize(a), 3*2+2)

	expect.True(t, errors.Is(errors.Precondition, c.MergeCells(b, a)))
	expect.True(t, errors.Is(errors.Precondition, c.MergeCells(y, b)))
	expect.True(t, errors.Is(errors.Precondition, c.ExcludeCell(b)))

	assert.NoError(t, c.MergeCells(a, y))
	id, ok := c.CellID("AAAAAAAT")
	expect.True(t, ok)
	expect.EQ(t, id, y)
	expect.EQ(t, c.MergeTargets(), []int{y, a, x, y})
	expect.EQ(t, c.ExcludedCells(), []string{"CCCCCCCC"})

	st := c.Stats()
	expect.EQ(t, st.MergedCells, 2)
	expect.EQ(t, st.ExcludedCells, 1)
}

func TestMergeUMIs(t *testing.T) {
	c := cells.NewContainer(nil, nil, testOpts())
	id := addCell(t, c, "AAAAAAAA", []string{"gene1"}, []string{"AAAAAA", "AAAAAT", "AAAATT", "CCCCCC"})
	assert.NoError(t, c.MergeUMIs(id, "gene1", map[string]string{
		"AAAATT": "AAAAAT",
		"AAAAAT": "AAAAAA",
	}))
	umis := c.CellGenes(id)["gene1"]
	expect.EQ(t, umis.Names(), []string{"AAAAAA", "CCCCCC"})
	expect.EQ(t, umis["AAAAAA"].ReadCount, 3)
	expect.EQ(t, c.Stats().MergedUMIs, 2)

	err := c.MergeUMIs(id, "gene1", map[string]string{"AAAAAA": "CCCCCC", "CCCCCC": "AAAAAA"})
	expect.True(t, errors.Is(errors.Invalid, err))
	// Unknown genes are a no-op.
	assert.NoError(t, c.MergeUMIs(id, "gene2", map[string]string{"A": "C"}))
}

func TestGeneMatchLevels(t *testing.T) {
	opts := testOpts()
	opts.GeneMatchLevels = []umi.Mark{umi.HasExons}
	c := cells.NewContainer(nil, nil, opts)
	_, err := c.AddRecord("AAAAAAAA", "AAAAAA", "gene1", umi.HasExons)
	assert.NoError(t, err)
	_, err = c.AddRecord("AAAAAAAA", "CCCCCC", "gene1", umi.HasExons)
	assert.NoError(t, err)
	_, err = c.AddRecord("AAAAAAAA", "CCCCCC", "gene1", umi.HasNotAnnotated)
	assert.NoError(t, err)
	_, err = c.AddRecord("AAAAAAAA", "GGGGGG", "gene2", umi.HasIntrons)
	assert.NoError(t, err)

	assert.NoError(t, c.MergeAndFilter())
	g := c.CellGenes(0)
	expect.EQ(t, g.Names(), []string{"gene1"})
	// Exact match: exons|not-annotated is not exons.
	expect.EQ(t, g["gene1"].Names(), []string{"AAAAAA"})
	expect.EQ(t, c.Stats().ExcludedUMIs, 2)
}

func TestSimpleMerge(t *testing.T) {
	opts := testOpts()
	opts.MinGenesAfterMerge = 3
	c := cells.NewContainer(cells.DefaultSimpleMergeStrategy, nil, opts)
	big := addCell(t, c, "AAAAAAAA", genes(5), []string{"ACGTAC", "TTTTTT"})
	small := addCell(t, c, "AAAAAAAT", genes(2), []string{"ACGTAC"})
	far := addCell(t, c, "CCCCCCCC", genes(2), []string{"ACGTAC"})
	// Close barcode, but no shared UMI.
	disjoint := addCell(t, c, "AAAAAATT", genes(1), []string{"GGGGGG"})

	assert.NoError(t, c.MergeAndFilter())
	expect.True(t, c.IsCellMerged(small))
	expect.False(t, c.IsCellMerged(far))
	expect.False(t, c.IsCellMerged(disjoint))
	expect.EQ(t, c.MergeTargets()[small], big)
	expect.EQ(t, c.MergeType(), "simple")

	expect.True(t, c.IsCellReal(big))
	expect.False(t, c.IsCellReal(far))
	realCells, err := c.FilteredCells()
	assert.NoError(t, err)
	expect.EQ(t, realCells, []int{big})

	sorted, err := c.CellsGeneCountsSorted()
	assert.NoError(t, err)
	expect.EQ(t, sorted, []cells.IndexedCount{{Index: big, Count: 5}, {Index: far, Count: 2}, {Index: disjoint, Count: 1}})
	expect.EQ(t, c.CellGenes(big)["gene00"]["ACGTAC"].ReadCount, 2)
}

func TestKnownBarcodesMerge(t *testing.T) {
	corrector, err := umi.NewSnapCorrector([]byte("AAAAAAAA\nCCCCCCCC\n"), 1)
	assert.NoError(t, err)
	c := cells.NewContainer(cells.KnownBarcodesMergeStrategy{Corrector: corrector}, nil, testOpts())
	known := addCell(t, c, "AAAAAAAA", genes(2), []string{"ACGTAC"})
	variant := addCell(t, c, "AAAAAAAG", genes(2), []string{"TTTTTT"})
	absentVariant := addCell(t, c, "CCCCCCCA", genes(1), []string{"TTTTTT"})
	noise := addCell(t, c, "GGGGTTTT", genes(1), []string{"TTTTTT"})

	assert.NoError(t, c.MergeAndFilter())
	expect.EQ(t, c.MergeTargets()[variant], known)
	expect.True(t, c.IsCellExcluded(noise))
	expect.EQ(t, c.ExcludedCells(), []string{"GGGGTTTT"})

	id, ok := c.CellID("CCCCCCCA")
	expect.True(t, ok)
	expect.EQ(t, c.CellBarcode(id), "CCCCCCCC")
	expect.True(t, c.IsCellMerged(absentVariant))
	expect.EQ(t, c.NumCells(), 5)

	expect.EQ(t, c.QueryUMIsPerGene(known, false), map[string]int{"gene00": 2, "gene01": 2})
}

func TestUMIMergeInMergeAndFilter(t *testing.T) {
	c := cells.NewContainer(nil, cells.DefaultSimpleUMIMergeStrategy, testOpts())
	for _, r := range []struct {
		cb, umi, gene string
	}{
		{"AAAAAAAA", "AAAAAA", "gene1"},
		{"AAAAAAAA", "AAAAAA", "gene1"},
		{"AAAAAAAA", "AAAAAT", "gene1"},
		{"AAAAAAAA", "CCCCCC", "gene1"},
		{"AAAAAAAA", "AAAAAT", "gene2"},
		{"CCCCCCCC", "GGGGGG", "gene1"},
		{"CCCCCCCC", "GGGGGA", "gene1"},
	} {
		_, err := c.AddRecord(r.cb, r.umi, r.gene, umi.HasExons)
		assert.NoError(t, err)
	}
	assert.NoError(t, c.MergeAndFilter())

	expect.EQ(t, c.QueryReadsPerUMIPerGene(0), map[string]map[string]int{
		"gene1": {"AAAAAA": 3, "CCCCCC": 1},
		"gene2": {"AAAAAT": 1},
	})
	// Tie on reads: lexicographically smallest wins.
	expect.EQ(t, c.QueryReadsPerUMIPerGene(1), map[string]map[string]int{
		"gene1": {"GGGGGA": 2},
	})
	expect.EQ(t, c.QueryUMIsPerGene(0, true), map[string]int{"gene1": 4, "gene2": 1})
	expect.EQ(t, c.Stats().MergedUMIs, 2)

	dist, err := c.UMIsDistribution()
	assert.NoError(t, err)
	expect.EQ(t, dist, map[string]int{"AAAAAA": 1, "CCCCCC": 1, "AAAAAT": 1, "GGGGGA": 1})
}

func TestUpdateCellSizes(t *testing.T) {
	c := cells.NewContainer(nil, nil, testOpts())
	a := addCell(t, c, "AAAAAAAA", genes(3), []string{"ACGTAC"})
	b := addCell(t, c, "CCCCCCCC", genes(3), []string{"ACGTAC", "TTTTTT"})
	d := addCell(t, c, "GGGGGGGG", genes(1), []string{"ACGTAC"})
	assert.NoError(t, c.MergeAndFilter())

	n, err := c.NumberOfRealCells()
	assert.NoError(t, err)
	expect.EQ(t, n, 3)

	c.UpdateCellSizes(3, 4, true)
	realCells, err := c.FilteredCells()
	assert.NoError(t, err)
	expect.EQ(t, realCells, []int{b})
	expect.False(t, c.IsCellReal(a))
	expect.False(t, c.IsCellReal(d))

	sorted, err := c.CellsGeneCountsSorted()
	assert.NoError(t, err)
	// Ties keep cell id order.
	expect.EQ(t, sorted, []cells.IndexedCount{{Index: a, Count: 3}, {Index: b, Count: 3}, {Index: d, Count: 1}})
}

func TestRecordStats(t *testing.T) {
	c := cells.NewContainer(nil, nil, testOpts())
	addCell(t, c, "AAAAAAAA", genes(1), []string{"ACGTAC"})
	st := c.Stats()
	st.Reads = 100
	expect.EQ(t, c.Stats().Reads, 1)

	c.RecordStats(cells.Stats{UnassignedReads: 3, UnparsedReads: 2})
	c.RecordStats(cells.Stats{UnassignedReads: 1})
	expect.EQ(t, c.Stats(), cells.Stats{Reads: 1, UnassignedReads: 4, UnparsedReads: 2})
	c.Stats().Log()
}

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	status := m.Run()
	shutdown()
	os.Exit(status)
}
