// Package validate decides whether the changes made to a signed document
// are allowed by the locking policy of its signatures.
//
// The policy of a version is folded from every signed signature field: its
// /Lock dictionary, the FieldMDP and DocMDP transforms of its /Reference
// entries and the catalog's /Perms /DocMDP signature. Field sets combine by
// union, so a field locked by any signature stays locked; permissions take
// the most restrictive level.
//
// [Check] compares two versions of a document:
//
//	res, err := validate.Check(ctx, doc, signed, doc.Versions()-1)
//	if err != nil {
//		return err // I/O failure
//	}
//	if !res.Accepted {
//		for _, r := range res.Rejected {
//			fmt.Println(r)
//		}
//	}
//
// Locked fields must stay structurally identical. Unlocked fields may change
// their value and appearance only. Outside the form, document information,
// metadata, encryption, signature values, appearance subtrees and
// cross-reference or object streams may always be rewritten; pages may gain
// annotations and the form may gain fields when the permission level allows
// it. Any other difference is rejected.
//
// [History] runs the check over every pair of adjacent versions and reports
// the earliest version holding an unauthorized change.
package validate
