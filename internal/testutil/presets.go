package testutil

// WithStandardTree adds the standard two-file fixture used across the
// engine tests:
//
//	scan001.gwy
//	  ├── 0 Topography (with ROI)
//	  └── 1 Phase
//	scan002.gwy
//	  └── 0 Topography
func (b *Builder) WithStandardTree() *Builder {
	return b.
		WithResource("scan001.gwy",
			Channel(0, Title("Topography"), Selection(10, 10, 50, 50)),
			Channel(1, Title("Phase"), DataRange(-3.14, 3.14)),
		).
		WithResource("scan002.gwy",
			Channel(0, Title("Topography"), Resolution(512, 512), DataRange(-2e-9, 8e-9)),
		)
}
