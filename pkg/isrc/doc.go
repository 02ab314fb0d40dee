// Package isrc validates, normalizes and formats International Standard Recording Codes.
//
// # Overview
//
// An ISRC identifies a single sound recording. The canonical form is twelve
// uppercase alphanumeric characters with no separators:
//
//	FRGFV9400246
//	CC XXX YY NNNNN
//	|  |   |  `---- designation code (5 digits)
//	|  |   `------- year of reference (2 digits)
//	|  `----------- registrant code (3 alphanumerics)
//	`-------------- country code (2 letters)
//
// The display form inserts hyphens after positions 2, 5 and 7:
//
//	FR-GFV-94-00246
//
// # Usage
//
// All functions accept free-form input (lowercase, hyphens, spaces) and never
// panic or return errors for malformed codes. Invalidity is signalled through
// return values:
//
//	isrc.Validate("fr-gfv-94-00246")  // true
//	isrc.Normalize("fr gfv 94 00246") // "FRGFV9400246"
//	isrc.Format("frgfv9400246")       // "FR-GFV-94-00246"
//	isrc.Format("ABC123")             // "ABC123" (invalid input is returned untouched)
//
//	year, ok := isrc.YearOf("FRGFV9400246") // 1994, true
//
// # Year ambiguity
//
// ISRC year codes carry two digits only. YearOf maps codes above 50 to the
// twentieth century and the rest to the twenty-first. A recording registered
// in 1949 therefore reports 2049. This is a limitation of the code itself.
//
// # Identification providers
//
// Fingerprinting services return ISRCs buried in provider-specific JSON.
// AcoustIDResponse and AudDResponse model those payloads with explicit optional
// fields, and ExtractFromAcoustID / ExtractFromAudD walk them in a fixed
// priority order, returning the first code found.
package isrc
