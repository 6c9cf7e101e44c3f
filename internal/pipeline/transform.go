package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"quantity-pipeline/internal/model"
	"quantity-pipeline/pkg/utils"
)

// Synthetic properties a rule may request through its text or sum list.
const (
	statusProperty = "Status"
	artProperty    = "Art"
)

// ------------------- Row Builder -------------------

// BuildRows turns one classified element into long-form observation rows: one
// per selected property in key order, then the Stückzahl count row, then the
// Status and Art rows when the rule asks for them. neverConvert marks the keys
// whose values stay strings.
func BuildRows(class string, c Classification, rule *model.MappingRule, neverConvert map[string]bool) []model.ObservationRow {
	rows := make([]model.ObservationRow, 0, len(c.Properties)+1)
	row := func(prop string, v any) model.ObservationRow {
		return model.ObservationRow{
			Kategorie:     c.Category,
			Gruppe:        c.Labels.Gruppe,
			Art:           c.Labels.Art,
			Status:        c.Labels.Status,
			Eigenschaft:   prop,
			Wert:          model.ValueOf(utils.CoerceCell(v, neverConvert[prop])),
			OriginalClass: class,
		}
	}

	for _, key := range c.Properties.Keys() {
		rows = append(rows, row(key, c.Properties[key]))
	}
	rows = append(rows, row(model.CountProperty, 1.0))

	if rule != nil {
		if listed(rule, statusProperty) {
			rows = append(rows, row(statusProperty, c.Labels.Status))
		}
		if listed(rule, artProperty) {
			rows = append(rows, row(artProperty, c.Labels.Art))
		}
	}
	return rows
}

func listed(rule *model.MappingRule, prop string) bool {
	for _, list := range [][]string{rule.Text, rule.Sum} {
		for _, k := range list {
			if k == prop {
				return true
			}
		}
	}
	return false
}

// ------------------- Transformation stage -------------------

// elementRows is the output of the transformation stage for one element.
type elementRows struct {
	Index      int
	Record     model.ElementRecord
	Class      Classification
	Rows       []model.ObservationRow
	Skipped    bool
	RuleDriven bool
}

// TransformElements flattens, categorizes and expands elements on workerCount
// workers. Results carry the model index so the caller can restore order.
func TransformElements(
	ctx context.Context,
	categorizer *Categorizer,
	mapping model.Mapping,
	skipUnmapped bool,
	in <-chan indexedElement,
	out chan<- elementRows,
	workerCount int,
) {
	if workerCount < 1 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	wg.Add(workerCount)

	var transformed, skipped int64
	var mu sync.Mutex

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			defer wg.Done()
			workerTransformed, workerSkipped := 0, 0

			for el := range in {
				res := transformElement(categorizer, mapping, skipUnmapped, el)
				if res.Skipped {
					workerSkipped++
				} else {
					workerTransformed++
				}
				select {
				case <-ctx.Done():
					return
				case out <- res:
				}
			}

			mu.Lock()
			transformed += int64(workerTransformed)
			skipped += int64(workerSkipped)
			mu.Unlock()
			slog.Debug("transform worker done", "worker", workerID, "transformed", workerTransformed, "skipped", workerSkipped)
		}(i)
	}

	// Close the output channel only after all workers finish
	go func() {
		wg.Wait()
		mu.Lock()
		slog.Debug("transformation summary", "transformed", transformed, "skipped", skipped)
		mu.Unlock()
		close(out)
	}()
}

func transformElement(categorizer *Categorizer, mapping model.Mapping, skipUnmapped bool, el indexedElement) elementRows {
	rec := Flatten(el.Element)
	res := elementRows{Index: el.Index, Record: rec}

	rule, hasRule := mapping.Rule(rec.Class)
	if !hasRule && skipUnmapped {
		res.Skipped = true
		return res
	}

	res.Class = categorizer.Categorize(rec)
	res.RuleDriven = res.Class.RuleDriven
	if hasRule {
		res.Rows = BuildRows(rec.Class, res.Class, &rule, rule.NeverConvert())
	} else {
		res.Rows = BuildRows(rec.Class, res.Class, nil, nil)
		slog.Debug("heuristic categorization", "id", rec.ID, "class", rec.Class, "rule", res.Class.Heuristic, "category", res.Class.Category)
	}
	return res
}
