package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/tsawler/pdfrev/core"
)

// load reads the header and every cross-reference section reachable from
// startxref. Structural damage hands over to the repair engine.
func (d *Document) load() error {
	err := d.parseHeader()
	if err == nil {
		err = d.loadSections()
	}
	if err == nil {
		return nil
	}
	if !errors.Is(err, core.ErrFormat) || !d.allowRepair {
		return err
	}

	d.logger.Warn("cross-reference data unusable, repairing", "err", err)
	if rerr := d.repair(context.Background()); rerr != nil {
		return fmt.Errorf("%w (repair failed: %v)", err, rerr)
	}
	return nil
}

func (d *Document) loadSections() error {
	parser := core.NewXRefParser(d.src, d.size)
	tables, err := parser.ParseAllXRefs()
	if err != nil {
		return err
	}

	sections := make([]*Section, 0, len(tables))
	for _, t := range tables {
		s, err := sectionFromXRef(t)
		if err != nil {
			return err
		}
		sections = append(sections, s)
	}
	if err := d.checkSections(sections); err != nil {
		return err
	}

	d.chain.reset()
	d.chain.sections = sections
	d.logger.Debug("loaded document", "version", d.version, "sections", len(sections), "objects", d.NumObjects())
	return nil
}

// checkSections rejects indexes that parse but contradict the file: offsets
// past the end, a base section without the free-list head, or a /Size
// smaller than the entries it covers.
func (d *Document) checkSections(sections []*Section) error {
	if len(sections) == 0 {
		return core.FormatErrorf("no cross-reference sections")
	}

	base := sections[0]
	if head := base.entry(0); head == nil || head.Kind != KindFree {
		return core.FormatErrorf("base section has no free-list head")
	}

	bound := 0
	for _, s := range sections {
		bound = max(bound, s.Len())
		for num := range s.entries {
			e := &s.entries[num]
			if e.Kind == KindNormal && (e.Offset <= 0 || e.Offset >= d.size) {
				return core.FormatErrorf("object %d offset %d outside file of %d bytes", num, e.Offset, d.size)
			}
		}
	}

	newest := sections[len(sections)-1]
	size, ok := newest.Trailer.GetInt("Size")
	if !ok {
		return core.FormatErrorf("trailer missing /Size")
	}
	if int(size) < bound {
		return core.FormatErrorf("trailer /Size %d smaller than %d entries", size, bound)
	}
	if !newest.Trailer.Has("Root") {
		return core.FormatErrorf("trailer missing /Root")
	}
	return nil
}
