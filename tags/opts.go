package tags

// SpacerOpts configures spacer-anchored barcode extraction. The read layout
// is [barcode part 1][spacer][barcode part 2][UMI][R1 tail].
type SpacerOpts struct {
	// Spacer is the literal anchor sequence.
	Spacer string
	// MaxSpacerEditDistance bounds the Levenshtein distance between the
	// spacer and its match in the read.
	MaxSpacerEditDistance int
	// SpacerPrefixLength is the length of the spacer prefix that is
	// reported separately in stats: an edited match whose prefix is intact
	// usually has its errors near the barcode part 2 boundary.
	SpacerPrefixLength int
	// SpacerMinPos and SpacerMaxPos bound the 0-based start position of
	// the spacer in the read, inclusive. The barcode part 1 length varies
	// within this window.
	SpacerMinPos int
	SpacerMaxPos int
	// BarcodeLength is the length of barcode part 2.
	BarcodeLength int
	// UMILength is the length of the UMI following barcode part 2.
	UMILength int
	// R1RCLength is the number of bases following the UMI whose
	// reverse-complement is searched for in R2 during trimming.
	R1RCLength int
}

// MaskOpts configures fixed-position extraction from a barcode mask such
// as "[20]TGAC[20]TCCC[20]CAACGAGGTCGGCTAGGCG(8)". When BarcodeMask is
// set, it takes precedence over SpacerOpts.
type MaskOpts struct {
	BarcodeMask string
	// SpacerEditDists holds one edit-distance budget per literal segment
	// of the mask, in order. Empty means zero for every segment.
	SpacerEditDists []int
	// R1RCLength is the number of bases following the mask whose
	// reverse-complement is searched for in R2 during trimming.
	R1RCLength int
}

// TrimOpts configures trimming of the 3' end of R2.
type TrimOpts struct {
	// MinAlignLength is the shortest R2 a trim may leave. Cuts that would
	// leave fewer bases are skipped.
	MinAlignLength int
	// MaxReads caps the number of read pairs processed by a run. Zero or
	// negative means no limit.
	MaxReads int
	// PolyATail is the literal searched for in R2. R2 is cut at its first
	// occurrence.
	PolyATail string
}

// Opts holds all tag extraction parameters.
type Opts struct {
	Spacer SpacerOpts
	Mask   MaskOpts
	Trim   TrimOpts
}

// DefaultOpts holds the default parameters, set for the inDrop v1 layout.
var DefaultOpts = Opts{
	Spacer: SpacerOpts{
		Spacer:                "GAGTGATTGCTTGTGACGCCTT",
		MaxSpacerEditDistance: 3,
		SpacerPrefixLength:    5,
		SpacerMinPos:          8,
		SpacerMaxPos:          11,
		BarcodeLength:         8,
		UMILength:             6,
		R1RCLength:            8,
	},
	Trim: TrimOpts{
		MinAlignLength: 10,
		MaxReads:       0,
		PolyATail:      "AAAAAAAA",
	},
}
