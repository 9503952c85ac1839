package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/scrna/encoding/fastq"
	"github.com/grailbio/scrna/tags"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

const testR2 = "CCGTGCCGTGCCGTGCCGTG"

var testR1 = []struct{ name, seq string }{
	{"p0", "TAGTCTAGGAGTGATTGCTTGTGACGCCTTTCATCCTTATAATATTTTTTTTTTT"},
	{"p1", strings.Repeat("C", 55)},
	{"p2", "TTCGGTTCGGAGTGATTGCTTGTGACGCCTTCTTCGATTCGCCATTTTTTTTTTT"},
	{"p3", "TAGTTTCGGAGTGTTTGCTTGTGACGCCTTACCTTGCCCGCGACTTTTTTTTTTT"},
}

// r1Qual returns n qualities that rise by one per base, so that the UMI
// qualities of a tagged read show where the UMI was sliced from.
func r1Qual(n int) string {
	q := make([]byte, n)
	for i := range q {
		q[i] = byte('#' + i%60)
	}
	return string(q)
}

// Tagged read IDs of p0, p2 and p3, with the qualities of their UMIs.
var taggedIDs = []string{
	"@p0!TAGTCTAGTCATCCTT#ATAATA\tUY:Z:IJKLMN",
	"@p2!TTCGGTTCGCTTCGATT#CGCCAT\tUY:Z:JKLMNO",
	"@p3!TAGTTTCGACCTTGCC#CGCGAC\tUY:Z:IJKLMN",
}

func writeFASTQ(t *testing.T, path string, reads []fastq.Read) {
	f, err := os.Create(path)
	assert.NoError(t, err)
	gz := gzip.NewWriter(f)
	w := fastq.NewWriter(gz)
	for i := range reads {
		assert.NoError(t, w.Write(&reads[i]))
	}
	assert.NoError(t, w.Flush())
	assert.NoError(t, gz.Close())
	assert.NoError(t, f.Close())
}

func writePairs(t *testing.T, dir string, r2Names []string) (r1Path, r2Path string) {
	var r1, r2 []fastq.Read
	for i, r := range testR1 {
		r1 = append(r1, fastq.Read{ID: "@" + r.name + " 1:N:0", Seq: r.seq, Qual: r1Qual(len(r.seq))})
		r2 = append(r2, fastq.Read{ID: "@" + r2Names[i] + " 2:N:0", Seq: testR2, Qual: strings.Repeat("F", len(testR2))})
	}
	r1Path = filepath.Join(dir, "r1.fastq.gz")
	r2Path = filepath.Join(dir, "r2.fastq.gz")
	writeFASTQ(t, r1Path, r1)
	writeFASTQ(t, r2Path, r2)
	return
}

func readTagged(t *testing.T, path string) []fastq.Read {
	f, err := os.Open(path)
	assert.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	assert.NoError(t, err)
	sc := fastq.NewScanner(gz, fastq.All)
	var reads []fastq.Read
	var r fastq.Read
	for sc.Scan(&r) {
		reads = append(reads, r)
	}
	assert.NoError(t, sc.Err())
	return reads
}

func TestTagReads(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	r1, r2 := writePairs(t, tmpdir, []string{"p0", "p1", "p2", "p3"})

	for _, parallelism := range []int{1, 3} {
		flags := tagFlags{
			r1:          r1,
			r2:          r2,
			output:      filepath.Join(tmpdir, "tagged.fastq.gz"),
			parallelism: parallelism,
			batchSize:   1,
			checkNames:  true,
		}
		stats, err := tagReads(ctx, flags, tags.DefaultOpts)
		assert.NoError(t, err)
		expect.EQ(t, stats.Reads, 4)
		expect.EQ(t, stats.Parsed, 3)
		expect.EQ(t, stats.SpacerNotFound, 1)

		reads := readTagged(t, flags.output)
		assert.EQ(t, len(reads), 3)
		for i, r := range reads {
			expect.EQ(t, r.ID, taggedIDs[i])
			expect.EQ(t, r.Seq, testR2)
			expect.EQ(t, r.Qual, strings.Repeat("F", len(testR2)))
		}
	}
}

func TestTagReadsMaxReads(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	r1, r2 := writePairs(t, tmpdir, []string{"p0", "p1", "p2", "p3"})

	opts := tags.DefaultOpts
	opts.Trim.MaxReads = 2
	flags := tagFlags{r1: r1, r2: r2, output: filepath.Join(tmpdir, "tagged.fastq"), parallelism: 2, batchSize: 16}
	stats, err := tagReads(vcontext.Background(), flags, opts)
	assert.NoError(t, err)
	expect.EQ(t, stats.Reads, 2)
	expect.EQ(t, stats.Parsed, 1)

	data, err := ioutil.ReadFile(flags.output)
	assert.NoError(t, err)
	expect.EQ(t, string(data), taggedIDs[0]+"\n"+testR2+"\n+\n"+strings.Repeat("F", len(testR2))+"\n")
}

func TestTagReadsDiscordant(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	r1, r2 := writePairs(t, tmpdir, []string{"p0", "p1", "px", "p3"})

	flags := tagFlags{r1: r1, r2: r2, output: filepath.Join(tmpdir, "tagged.fastq"), parallelism: 2, batchSize: 1, checkNames: true}
	_, err := tagReads(vcontext.Background(), flags, tags.DefaultOpts)
	assert.NotNil(t, err)
	assert.HasSubstr(t, err.Error(), fastq.ErrDiscordant.Error())

	flags.checkNames = false
	_, err = tagReads(vcontext.Background(), flags, tags.DefaultOpts)
	assert.NoError(t, err)
}

func TestTagReadsBzip2(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	r1, r2 := writePairs(t, tmpdir, []string{"p0", "p1", "p2", "p3"})

	flags := tagFlags{r1: r1, r2: r2, output: filepath.Join(tmpdir, "tagged.fastq.bz2"), parallelism: 2, batchSize: 2}
	_, err := tagReads(vcontext.Background(), flags, tags.DefaultOpts)
	assert.NoError(t, err)

	f, err := os.Open(flags.output)
	assert.NoError(t, err)
	defer f.Close()
	zr, err := bzip2.NewReader(f, nil)
	assert.NoError(t, err)
	sc := fastq.NewScanner(zr, fastq.ID)
	var (
		r   fastq.Read
		ids []string
	)
	for sc.Scan(&r) {
		ids = append(ids, r.ID)
	}
	assert.NoError(t, sc.Err())
	expect.EQ(t, ids, taggedIDs)
}

func TestTagReadsBadOpts(t *testing.T) {
	opts := tags.DefaultOpts
	opts.Spacer.Spacer = ""
	_, err := tagReads(vcontext.Background(), tagFlags{output: "/dev/null"}, opts)
	expect.NotNil(t, err)
}

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	code := m.Run()
	shutdown()
	os.Exit(code)
}
