package application

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	overrides "github.com/said46/autoSOC/internal/overrides/domain"
	"github.com/said46/autoSOC/internal/overrides/infrastructure/soc"
	"github.com/said46/autoSOC/internal/platform/logger"
)

// Submitter posts one batch per call.
type Submitter interface {
	Submit(ctx context.Context, set *overrides.CertificateOverrideSet, cred soc.Credential) (soc.Result, error)
}

// Service builds, validates and submits override batches.
type Service struct {
	catalog   overrides.Catalog
	types     []overrides.OverrideType
	validator *Validator
	submitter Submitter
	factory   overrides.RecordFactory
	logger    *logger.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTypes sets the known override types.
func WithTypes(types []overrides.OverrideType) ServiceOption {
	return func(s *Service) {
		if len(types) > 0 {
			s.types = append([]overrides.OverrideType(nil), types...)
		}
	}
}

// WithNotAppliedStateID overrides the current-state sentinel.
func WithNotAppliedStateID(id int64) ServiceOption {
	return func(s *Service) {
		if id > 0 {
			s.factory.CurrentStateID = id
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService constructs the submission flow. submitter may be nil for
// read-only use.
func NewService(catalog overrides.Catalog, submitter Submitter, opts ...ServiceOption) (*Service, error) {
	if catalog == nil {
		return nil, errors.New("service: nil catalog")
	}
	s := &Service{
		catalog:   catalog,
		types:     overrides.DefaultTypes(),
		submitter: submitter,
		factory:   overrides.NewRecordFactory(),
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	validator, err := NewValidator(catalog, s.logger)
	if err != nil {
		return nil, err
	}
	s.validator = validator
	return s, nil
}

// Types returns the known override types.
func (s *Service) Types() []overrides.OverrideType {
	return append([]overrides.OverrideType(nil), s.types...)
}

// Prepare builds a set from intents and validates it. The set is returned
// alongside validation problems so callers can report them.
func (s *Service) Prepare(ctx context.Context, certificateID int64, intents []overrides.Intent) (*overrides.CertificateOverrideSet, error) {
	set, err := s.factory.Build(certificateID, intents)
	if err != nil {
		return nil, err
	}
	problems, err := s.validator.Validate(ctx, set)
	if err != nil {
		return set, err
	}
	s.label(ctx, set)
	if len(problems) > 0 {
		return set, problems
	}
	s.logger.Info("batch prepared", "certificate_id", certificateID, "records", set.Len())
	return set, nil
}

// Submit re-validates set and posts it. An invalid batch never reaches the
// submitter.
func (s *Service) Submit(ctx context.Context, set *overrides.CertificateOverrideSet, cred soc.Credential) (soc.Result, error) {
	if s.submitter == nil {
		return soc.Result{}, errors.New("service: no submitter configured")
	}
	problems, err := s.validator.Validate(ctx, set)
	if err != nil {
		return soc.Result{}, err
	}
	if len(problems) > 0 {
		return soc.Result{}, problems
	}
	result, err := s.submitter.Submit(ctx, set, cred)
	if err != nil {
		return result, err
	}
	switch result.Outcome {
	case soc.OutcomeSubmitted:
		s.logger.Info("batch submitted", "certificate_id", set.CertificateID, "attempt_id", result.AttemptID)
	default:
		s.logger.Warn("batch not submitted", "certificate_id", set.CertificateID, "attempt_id", result.AttemptID,
			"outcome", string(result.Outcome), "level", overrides.Severity(result.Err()).String())
	}
	return result, nil
}

// ResolveTitled turns spreadsheet rows into intents by driving one resolver
// per row. Every failing row is reported.
func (s *Service) ResolveTitled(ctx context.Context, rows []overrides.TitledIntent) ([]overrides.Intent, error) {
	intents := make([]overrides.Intent, 0, len(rows))
	var errs []error
	for i, row := range rows {
		intent, err := s.resolveRow(ctx, row)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("overrides: row %d (%s): %w", i+1, row.TagNumber, err))
			continue
		}
		intents = append(intents, intent)
	}
	if len(errs) > 0 {
		return intents, errors.Join(errs...)
	}
	return intents, nil
}

func (s *Service) resolveRow(ctx context.Context, row overrides.TitledIntent) (overrides.Intent, error) {
	r, err := NewResolver(s.catalog, WithResolverTypes(s.types), WithResolverLogger(s.logger))
	if err != nil {
		return overrides.Intent{}, err
	}
	defer r.Close()

	steps := []func() (int64, error){
		func() (int64, error) { return r.SelectTypeByTitle(row.TypeTitle) },
		func() (int64, error) { return r.SelectMethodByTitle(row.MethodTitle) },
		func() (int64, error) { return r.SelectAppliedStateByTitle(row.AppliedStateTitle) },
		func() (int64, error) { return r.SelectRemovedStateByTitle(row.RemovedStateTitle) },
	}
	for _, step := range steps {
		if _, err := step(); err != nil {
			return overrides.Intent{}, err
		}
		if err := r.Wait(ctx); err != nil {
			return overrides.Intent{}, err
		}
		if snap := r.Snapshot(); snap.Err != nil {
			return overrides.Intent{}, snap.Err
		}
	}
	sel, err := r.Record()
	if err != nil {
		return overrides.Intent{}, err
	}
	return overrides.Intent{
		TagNumber:              row.TagNumber,
		Description:            row.Description,
		TypeID:                 sel.TypeID,
		MethodID:               sel.MethodID,
		AppliedStateID:         sel.AppliedStateID,
		RemovedStateID:         sel.RemovedStateID,
		Comment:                row.Comment,
		AdditionalValueApplied: row.AdditionalValueApplied,
		AdditionalValueRemoved: row.AdditionalValueRemoved,
	}, nil
}

// CatalogTree is the full catalog.
type CatalogTree struct {
	Types []TypeNode
}

// TypeNode is a type with its methods.
type TypeNode struct {
	Type    overrides.OverrideType
	Methods []MethodNode
}

// MethodNode is a method with its states.
type MethodNode struct {
	Method overrides.OverrideMethod
	States overrides.StateSet
}

const discoverConcurrency = 4

// Discover walks types, methods and states.
func (s *Service) Discover(ctx context.Context) (CatalogTree, error) {
	tree := CatalogTree{Types: make([]TypeNode, len(s.types))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(discoverConcurrency)
	for i, t := range s.types {
		i, t := i, t
		g.Go(func() error {
			methods, err := s.catalog.MethodsForType(gctx, t.ID)
			if err != nil {
				return fmt.Errorf("discover type %d: %w", t.ID, err)
			}
			node := TypeNode{Type: t, Methods: make([]MethodNode, 0, len(methods))}
			for _, m := range methods {
				states, err := s.catalog.StatesForMethod(gctx, m.ID)
				if err != nil {
					return fmt.Errorf("discover method %d: %w", m.ID, err)
				}
				node.Methods = append(node.Methods, MethodNode{Method: m, States: states})
			}
			tree.Types[i] = node
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CatalogTree{}, err
	}
	s.logger.Debug("catalog discovered", "types", len(tree.Types))
	return tree, nil
}

func (s *Service) label(ctx context.Context, set *overrides.CertificateOverrideSet) {
	typeTitles := make(map[int64]string, len(s.types))
	for _, t := range s.types {
		typeTitles[t.ID] = t.Title
	}
	methods := make(map[int64][]overrides.OverrideMethod)
	for i := range set.Records {
		rec := &set.Records[i]
		options, ok := methods[rec.TypeID]
		if !ok {
			options, _ = s.catalog.MethodsForType(ctx, rec.TypeID)
			methods[rec.TypeID] = options
		}
		var methodTitle string
		if m, ok := overrides.FindMethod(options, rec.MethodID); ok {
			methodTitle = m.Title
		}
		rec.Label = overrides.Label(typeTitles[rec.TypeID], methodTitle)
	}
}
