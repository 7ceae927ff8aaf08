package document

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/tsawler/pdfrev/core"
)

var (
	objHeaderPattern = regexp.MustCompile(`(\d+)[\x00\t\n\f\r ]+(\d+)[\x00\t\n\f\r ]+obj\b`)
	trailerPattern   = regexp.MustCompile(`trailer[\x00\t\n\f\r ]*<<`)
)

// Repair rebuilds the chain by scanning the whole file for object
// definitions. The in-memory edit section and open pins survive; views of
// older versions become invalid. After a repair, incremental saves are
// refused because the file has no reliable index to append to.
//
// A cancelled ctx stops the scan; the objects found so far are installed
// and ctx's error is returned.
func (d *Document) Repair(ctx context.Context) error {
	return d.repair(ctx)
}

// scanResult collects what the linear scan found.
type scanResult struct {
	entries  []Entry
	objstms  []int // numbers of object streams, in file order
	trailer  core.Dict
	xrefDict core.Dict
	catalog  int
	info     int
	objects  int
	skipped  int
}

func (d *Document) repair(ctx context.Context) error {
	if d.src == nil {
		return core.NewObjectError(0, 0, "repair", core.ErrIO, "document is closed")
	}
	d.repairing = true
	defer func() { d.repairing = false }()

	data, err := d.readAll()
	if err != nil {
		return err
	}
	if loc := headerPattern.FindSubmatchIndex(data[:min(len(data), 1024)]); loc != nil {
		major, _ := strconv.Atoi(string(data[loc[2]:loc[3]]))
		minor, _ := strconv.Atoi(string(data[loc[4]:loc[5]]))
		d.version = PDFVersion{Major: major, Minor: minor}
	}

	res := &scanResult{}
	scanErr := d.scanObjects(ctx, data, res)
	d.scanTrailers(data, res)
	d.fillFromObjectStreams(res)

	trailer, err := repairedTrailer(res)
	if err != nil {
		if scanErr != nil {
			return scanErr
		}
		return err
	}

	if len(res.entries) == 0 {
		res.entries = make([]Entry, 1)
	}
	res.entries[0] = Entry{Kind: KindFree, Generation: core.MaxGeneration}
	trailer["Size"] = core.Int(len(res.entries))

	s := &Section{
		entries:   res.entries,
		Trailer:   trailer,
		Offset:    0,
		recovered: true,
	}
	if len(d.chain.sections) > 0 {
		s.PreRepairTrailer = core.Clone(d.chain.sections[len(d.chain.sections)-1].Trailer).(core.Dict)
	}

	var edit *Section
	if top := d.chain.top(); len(d.chain.sections) > 0 && !top.Committed() {
		edit = top
	}
	local, depth := d.chain.local, d.chain.localDepth
	d.chain.reset()
	d.chain.sections = []*Section{s}
	if edit != nil {
		d.chain.sections = append(d.chain.sections, edit)
	}
	d.chain.local, d.chain.localDepth = local, depth
	d.repaired = true

	d.logger.Info("document repaired", "objects", res.objects, "skipped", res.skipped, "size", len(res.entries))
	return scanErr
}

// scanObjects parses every "N G obj" definition in file order. Later
// definitions of a number replace earlier ones. Headers that fall inside an
// object already parsed (stream data, strings) are ignored.
func (d *Document) scanObjects(ctx context.Context, data []byte, res *scanResult) error {
	end := 0
	for _, loc := range objHeaderPattern.FindAllSubmatchIndex(data, -1) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("repair stopped after %d objects: %w", res.objects, err)
		}
		start := loc[0]
		if start < end {
			continue
		}
		if start > 0 && !isSeparator(data[start-1]) {
			continue
		}

		num, err1 := strconv.Atoi(string(data[loc[2]:loc[3]]))
		gen, err2 := strconv.Atoi(string(data[loc[4]:loc[5]]))
		if err1 != nil || err2 != nil || num <= 0 || num >= maxObjects || gen > core.MaxGeneration {
			continue
		}

		obj, consumed, err := parseRecovered(data[start:])
		if err != nil {
			res.skipped++
			d.logger.Debug("skipping corrupt object", "num", num, "offset", start, "err", err)
			continue
		}
		end = start + consumed

		if num >= len(res.entries) {
			grown := make([]Entry, num+1)
			copy(grown, res.entries)
			res.entries = grown
		}
		res.entries[num] = Entry{Kind: KindNormal, Generation: gen, Offset: int64(start), value: obj}
		res.objects++

		d.fingerprint(num, obj, res)
	}
	return nil
}

// parseRecovered parses one indirect object, honouring /Length when it is
// direct and correct and falling back to searching for endstream.
func parseRecovered(data []byte) (core.Object, int, error) {
	strict := core.NewParser(bytes.NewReader(data))
	strict.SetMaxStreamLength(int64(len(data)))
	if indObj, err := strict.ParseIndirectObject(); err == nil {
		return indObj.Object, int(strict.Pos()), nil
	}

	lenient := core.NewParser(bytes.NewReader(data))
	lenient.SetLenient(true)
	lenient.SetMaxStreamLength(int64(len(data)))
	indObj, err := lenient.ParseIndirectObject()
	if err != nil {
		return nil, 0, err
	}
	if s, ok := indObj.Object.(*core.Stream); ok {
		s.SetData(s.Data)
	}
	return indObj.Object, int(lenient.Pos()), nil
}

// fingerprint remembers objects that can stand in for a lost trailer.
func (d *Document) fingerprint(num int, obj core.Object, res *scanResult) {
	var dict core.Dict
	switch v := obj.(type) {
	case core.Dict:
		dict = v
	case *core.Stream:
		dict = v.Dict
		switch {
		case dict.IsType("ObjStm"):
			res.objstms = append(res.objstms, num)
		case dict.IsType("XRef") && dict.Has("Root"):
			res.xrefDict = dict
		}
		return
	default:
		return
	}

	switch {
	case dict.IsType("Catalog"):
		res.catalog = num
	case !dict.Has("Type") && (dict.Has("Producer") || dict.Has("Creator") || dict.Has("CreationDate")):
		res.info = num
	}
}

// scanTrailers keeps the last trailer dictionary that parses.
func (d *Document) scanTrailers(data []byte, res *scanResult) {
	for _, loc := range trailerPattern.FindAllIndex(data, -1) {
		dictStart := loc[1] - 2
		parser := core.NewParser(bytes.NewReader(data[dictStart:]))
		obj, err := parser.ParseObject()
		if err != nil {
			d.logger.Debug("skipping unreadable trailer", "offset", loc[0], "err", err)
			continue
		}
		if dict, ok := obj.(core.Dict); ok && dict.Has("Root") {
			res.trailer = dict
		}
	}
}

// fillFromObjectStreams adds members of object streams found by the scan
// for numbers that have no direct definition. Later containers win.
func (d *Document) fillFromObjectStreams(res *scanResult) {
	direct := make(map[int]bool)
	for num := range res.entries {
		if res.entries[num].Kind == KindNormal {
			direct[num] = true
		}
	}

	for _, cnum := range res.objstms {
		stream, ok := res.entries[cnum].value.(*core.Stream)
		if !ok {
			continue
		}
		objstm, err := core.NewObjectStream(stream)
		if err != nil {
			d.logger.Debug("skipping object stream", "num", cnum, "err", err)
			continue
		}
		nums, err := objstm.ObjectNumbers()
		if err != nil {
			d.logger.Debug("skipping object stream", "num", cnum, "err", err)
			continue
		}
		members, err := objstm.LoadAll()
		if err != nil {
			d.logger.Debug("object stream has unreadable members", "num", cnum, "err", err)
		}
		for i, num := range nums {
			if num <= 0 || num >= maxObjects || direct[num] {
				continue
			}
			obj, ok := members[num]
			if !ok {
				res.skipped++
				continue
			}
			if num >= len(res.entries) {
				grown := make([]Entry, num+1)
				copy(grown, res.entries)
				res.entries = grown
			}
			res.entries[num] = Entry{Kind: KindCompressed, Container: cnum, Index: i, value: obj}
			res.objects++
			d.fingerprint(num, obj, res)
		}
	}
}

// repairedTrailer picks the trailer: the last "trailer" dictionary, else a
// cross-reference stream dictionary, else one assembled from the last
// catalog and info-like dictionary.
func repairedTrailer(res *scanResult) (core.Dict, error) {
	var trailer core.Dict
	switch {
	case res.trailer != nil:
		trailer = core.Clone(res.trailer).(core.Dict)
	case res.xrefDict != nil:
		trailer = make(core.Dict)
		for _, key := range []string{"Root", "Info", "ID", "Encrypt"} {
			if v, ok := res.xrefDict[key]; ok {
				trailer[key] = core.Clone(v)
			}
		}
	default:
		trailer = make(core.Dict)
	}
	trailer.Delete("Prev")
	trailer.Delete("XRefStm")

	// a /Root that points nowhere is replaced by the catalog found
	root, ok := trailer.GetIndirectRef("Root")
	if !ok || !defined(res.entries, root.Number) {
		if res.catalog == 0 {
			return nil, core.FormatErrorf("no document catalog found")
		}
		trailer["Root"] = core.IndirectRef{Number: res.catalog, Generation: res.entries[res.catalog].Generation}
	}
	if _, ok := trailer.GetIndirectRef("Info"); !ok && res.info != 0 {
		trailer["Info"] = core.IndirectRef{Number: res.info, Generation: res.entries[res.info].Generation}
	}
	return trailer, nil
}

func defined(entries []Entry, num int) bool {
	return num > 0 && num < len(entries) && entries[num].Kind != KindNone
}

func isSeparator(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ', '>', ']', ')', '}':
		return true
	}
	return false
}
