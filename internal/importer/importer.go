// Package importer orchestrates a single file import: fingerprint dedup,
// parsing, classification, person resolution, persistence, and the final
// run manifest.
package importer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/capofinance/capo/internal/classify"
	"github.com/capofinance/capo/internal/fingerprint"
	"github.com/capofinance/capo/internal/model"
	"github.com/capofinance/capo/internal/parser"
	"github.com/capofinance/capo/internal/store"
)

// Messages surfaced to callers in ImportResult.
const (
	msgAlreadyImported = "File already imported previously"
	msgSuccess         = "Import completed successfully"
	msgPartial         = "Import completed with row errors"
	msgFailed          = "Import failed: no rows imported"
)

// Options configures person attribution for an Importer.
type Options struct {
	Persons          []parser.Person
	DefaultPerson    string
	FallbackPersonID int64
}

// Importer runs the import pipeline against a Store.
type Importer struct {
	store      store.Store
	classifier *classify.Classifier
	opts       Options
	log        *zap.Logger
}

func New(st store.Store, cls *classify.Classifier, opts Options, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{store: st, classifier: cls, opts: opts, log: log}
}

// ImportStatement imports a bank statement export against an account.
func (im *Importer) ImportStatement(ctx context.Context, filename string, data []byte, accountID *int64) (*model.ImportResult, error) {
	p := parser.NewStatement(im.opts.Persons, im.opts.DefaultPerson)
	return im.run(ctx, model.SourceStatement, filename, data, accountID, nil, p.Parse)
}

// ImportBill imports a credit card bill export against a card.
func (im *Importer) ImportBill(ctx context.Context, filename string, data []byte, cardID *int64) (*model.ImportResult, error) {
	p := parser.NewBill(im.opts.Persons, im.opts.DefaultPerson)
	return im.run(ctx, model.SourceBill, filename, data, nil, cardID, p.Parse)
}

type parseFunc func(data []byte) ([]model.ParsedTransaction, []parser.RowError, error)

func (im *Importer) run(ctx context.Context, kind model.SourceKind, filename string, data []byte, accountID, cardID *int64, parse parseFunc) (*model.ImportResult, error) {
	fp := fingerprint.Sum(data)
	log := im.log.With(
		zap.String("filename", filename),
		zap.String("source_kind", string(kind)),
		zap.String("fingerprint", fp),
	)

	exists, err := im.store.ExistsByFingerprint(ctx, fp)
	if err != nil {
		return nil, eris.Wrap(err, "importer: check fingerprint")
	}
	if exists {
		log.Info("file already imported, skipping")
		return &model.ImportResult{
			Filename:    filename,
			Fingerprint: fp,
			Status:      model.ResultSkipped,
			Message:     msgAlreadyImported,
		}, nil
	}

	rows, rowErrs, err := parse(data)
	if err != nil {
		// Unreadable file or wrong header. No manifest is written so a
		// corrected resubmission of the same bytes is not blocked.
		log.Warn("file rejected before import", zap.Error(err))
		return &model.ImportResult{
			Filename:    filename,
			Fingerprint: fp,
			Status:      model.ResultError,
			Message:     err.Error(),
		}, err
	}

	run := &model.ImportRun{
		SourceKind:   kind,
		Filename:     filename,
		Fingerprint:  fp,
		AccountID:    accountID,
		CreditCardID: cardID,
		TotalRows:    len(rows) + len(rowErrs),
	}
	if err := im.store.CreateImportRun(ctx, run); err != nil {
		if eris.Is(err, store.ErrDuplicate) {
			// Another submission of the same bytes won the race.
			log.Info("file already imported, skipping")
			return &model.ImportResult{
				Filename:    filename,
				Fingerprint: fp,
				Status:      model.ResultSkipped,
				Message:     msgAlreadyImported,
			}, nil
		}
		return nil, eris.Wrap(err, "importer: create run")
	}
	log = log.With(zap.String("run_id", run.ID))

	var imported, skipped int
	errored := len(rowErrs)
	for _, re := range rowErrs {
		log.Warn("row rejected", zap.Int("line", re.Line), zap.Error(re.Err))
	}

	res := newResolver(im.store, im.opts.DefaultPerson, im.opts.FallbackPersonID)
	for _, row := range rows {
		txn, err := im.buildTransaction(ctx, res, run, row)
		if err != nil {
			errored++
			log.Warn("row failed", zap.String("description", row.Description), zap.Error(err))
			continue
		}
		switch err := im.store.CreateTransaction(ctx, txn); {
		case err == nil:
			imported++
		case eris.Is(err, store.ErrDuplicate):
			skipped++
		default:
			errored++
			log.Warn("row failed", zap.String("description", row.Description), zap.Error(err))
		}
	}

	status := model.RunStatusSuccess
	switch {
	case errored == 0:
		status = model.RunStatusSuccess
	case imported+skipped == 0:
		status = model.RunStatusFailed
	default:
		status = model.RunStatusPartial
	}
	if err := im.store.FinalizeImportRun(ctx, run.ID, imported, skipped, errored, status); err != nil {
		return nil, eris.Wrap(err, "importer: finalize run")
	}

	result := &model.ImportResult{
		RunID:        run.ID,
		Filename:     filename,
		Fingerprint:  fp,
		TotalRows:    run.TotalRows,
		ImportedRows: imported,
		SkippedRows:  skipped,
		ErrorRows:    errored,
	}
	switch status {
	case model.RunStatusSuccess:
		result.Status, result.Message = model.ResultSuccess, msgSuccess
	case model.RunStatusPartial:
		result.Status, result.Message = model.ResultPartial, msgPartial
	default:
		result.Status, result.Message = model.ResultError, msgFailed
	}
	log.Info("import finished",
		zap.Int("imported", imported),
		zap.Int("skipped", skipped),
		zap.Int("errored", errored),
		zap.String("status", string(status)),
	)
	return result, nil
}

// buildTransaction classifies the row and resolves reference IDs.
// Classification is best effort: an unmatched description simply leaves
// the category columns null.
func (im *Importer) buildTransaction(ctx context.Context, res *resolver, run *model.ImportRun, row model.ParsedTransaction) (*model.Transaction, error) {
	txn := &model.Transaction{
		ImportRunID:     run.ID,
		SourceKind:      run.SourceKind,
		Timestamp:       row.Timestamp,
		Description:     row.Description,
		Amount:          row.Amount,
		Direction:       row.Direction,
		RunningBalance:  row.RunningBalance,
		InstallmentInfo: row.InstallmentInfo,
		CardHolder:      row.CardHolder,
		AccountID:       run.AccountID,
		CreditCardID:    run.CreditCardID,
	}

	personID, err := res.person(ctx, row.AttributedPerson)
	if err != nil {
		return nil, err
	}
	txn.PersonID = personID

	if m, ok := im.classifier.Classify(row.Description); ok {
		catID, subID, err := res.category(ctx, m.Category, m.Subcategory)
		if err != nil {
			return nil, err
		}
		txn.CategoryID = catID
		txn.SubcategoryID = subID
	}
	return txn, nil
}

// resolver caches reference lookups for the duration of one run.
type resolver struct {
	store            store.Store
	defaultPerson    string
	fallbackPersonID int64
	persons          map[string]int64
	categories       map[string]*int64
	subcategories    map[string]*int64
}

func newResolver(st store.Store, defaultPerson string, fallbackPersonID int64) *resolver {
	return &resolver{
		store:            st,
		defaultPerson:    defaultPerson,
		fallbackPersonID: fallbackPersonID,
		persons:          make(map[string]int64),
		categories:       make(map[string]*int64),
		subcategories:    make(map[string]*int64),
	}
}

// person resolves an attributed name to an ID. Misses fall back to the
// default person's row, then to the configured numeric ID, so a row is
// never dropped over attribution.
func (r *resolver) person(ctx context.Context, name string) (int64, error) {
	if id, ok := r.persons[name]; ok {
		return id, nil
	}
	p, err := r.store.FindPersonByName(ctx, name)
	if err != nil {
		return 0, eris.Wrap(err, "importer: resolve person")
	}
	if p == nil && name != r.defaultPerson {
		p, err = r.store.FindPersonByName(ctx, r.defaultPerson)
		if err != nil {
			return 0, eris.Wrap(err, "importer: resolve person")
		}
	}
	id := r.fallbackPersonID
	if p != nil {
		id = p.ID
	}
	r.persons[name] = id
	return id, nil
}

// category resolves classifier output to IDs. Missing reference rows are
// tolerated and cached as nil.
func (r *resolver) category(ctx context.Context, category, subcategory string) (*int64, *int64, error) {
	catID, ok := r.categories[category]
	if !ok {
		c, err := r.store.FindCategoryByName(ctx, category)
		if err != nil {
			return nil, nil, eris.Wrap(err, "importer: resolve category")
		}
		if c != nil {
			catID = &c.ID
		}
		r.categories[category] = catID
	}
	if catID == nil || subcategory == "" {
		return catID, nil, nil
	}

	key := category + "/" + subcategory
	subID, ok := r.subcategories[key]
	if !ok {
		s, err := r.store.FindSubcategoryByName(ctx, *catID, subcategory)
		if err != nil {
			return nil, nil, eris.Wrap(err, "importer: resolve subcategory")
		}
		if s != nil {
			subID = &s.ID
		}
		r.subcategories[key] = subID
	}
	return catID, subID, nil
}
