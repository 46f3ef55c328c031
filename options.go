package reactor


const (
	defaultPort          = 8080
	defaultIOThreads     = 12
	maxIOThreads         = 16
	defaultWorkerThreads = 24
	maxWorkerThreads     = 32
	defaultQueueSize     = 1024
	defaultReadBufSize   = 4096
	defaultWriteBufSize  = 4096
)

// serverOptions holds configuration for Server creation.
type serverOptions struct {
	port          int
	ioThreads     int
	workerThreads int
	queueSize     int
	readBufSize   int
	writeBufSize  int
	handler       Handler
	logger        Logger
}

// ServerOption configures a Server instance.
type ServerOption interface {
	applyServer(*serverOptions) error
}

// serverOptionImpl implements ServerOption.
type serverOptionImpl struct {
	applyServerFunc func(*serverOptions) error
}

func (o *serverOptionImpl) applyServer(opts *serverOptions) error {
	return o.applyServerFunc(opts)
}

// WithPort sets the listening TCP port. Port 0 binds an ephemeral port
// chosen by the operating system.
func WithPort(port int) ServerOption {
	return &serverOptionImpl{func(opts *serverOptions) error {
		if port < 0 || port > 65535 {
			return &ConfigError{Field: "port", Value: port, Bound: "must be in [0,65535]"}
		}
		opts.port = port
		return nil
	}}
}

// WithIOThreads sets the number of reactor goroutines, capped at
// maxIOThreads per spec.md §6.
func WithIOThreads(n int) ServerOption {
	return &serverOptionImpl{func(opts *serverOptions) error {
		if n < 1 || n > maxIOThreads {
			return &ConfigError{Field: "io-threads", Value: n, Bound: "must be in [1,16]"}
		}
		opts.ioThreads = n
		return nil
	}}
}

// WithWorkerThreads sets the number of worker goroutines, capped at
// maxWorkerThreads per spec.md §6.
func WithWorkerThreads(n int) ServerOption {
	return &serverOptionImpl{func(opts *serverOptions) error {
		if n < 1 || n > maxWorkerThreads {
			return &ConfigError{Field: "worker-threads", Value: n, Bound: "must be in [1,32]"}
		}
		opts.workerThreads = n
		return nil
	}}
}

// WithQueueSize sets the bounded task queue's capacity.
func WithQueueSize(n int) ServerOption {
	return &serverOptionImpl{func(opts *serverOptions) error {
		if n < 1 {
			return &ConfigError{Field: "queue-size", Value: n, Bound: "must be >= 1"}
		}
		opts.queueSize = n
		return nil
	}}
}

// WithBufferSize sets both the per-connection read and write buffer
// capacity.
func WithBufferSize(n int) ServerOption {
	return &serverOptionImpl{func(opts *serverOptions) error {
		if n < 1 {
			return &ConfigError{Field: "buffer-size", Value: n, Bound: "must be >= 1"}
		}
		opts.readBufSize = n
		opts.writeBufSize = n
		return nil
	}}
}

// WithHandler sets the application hook invoked by worker goroutines.
func WithHandler(h Handler) ServerOption {
	return &serverOptionImpl{func(opts *serverOptions) error {
		if h == nil {
			return &ConfigError{Field: "handler", Value: 0, Bound: "must not be nil"}
		}
		opts.handler = h
		return nil
	}}
}

// WithLogger sets the logger a Server uses. NewServer installs it as the
// package-level logger (see SetLogger), so it applies to every Server in
// the process, not only the one being built.
func WithLogger(l Logger) ServerOption {
	return &serverOptionImpl{func(opts *serverOptions) error {
		if l == nil {
			return &ConfigError{Field: "logger", Value: 0, Bound: "must not be nil"}
		}
		opts.logger = l
		return nil
	}}
}

// resolveServerOptions applies defaults, then opts in order, then falls
// back to EchoHandler if no Handler was supplied.
func resolveServerOptions(opts []ServerOption) (*serverOptions, error) {
	cfg := &serverOptions{
		port:          defaultPort,
		ioThreads:     defaultIOThreads,
		workerThreads: defaultWorkerThreads,
		queueSize:     defaultQueueSize,
		readBufSize:   defaultReadBufSize,
		writeBufSize:  defaultWriteBufSize,
		logger:        defaultLoggerInstance,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyServer(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.handler == nil {
		cfg.handler = EchoHandler{}
	}
	return cfg, nil
}
