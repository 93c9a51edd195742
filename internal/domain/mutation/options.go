package mutation

// Option configures a Service.
type Option func(*Service)

// WithUsageChecker installs the delete precondition hook.
func WithUsageChecker(checker UsageChecker) Option {
	return func(s *Service) {
		s.usages = checker
	}
}

// WithObserver adds an observer of committed mutations.
func WithObserver(observer Observer) Option {
	return func(s *Service) {
		if observer != nil {
			s.observers = append(s.observers, observer)
		}
	}
}
