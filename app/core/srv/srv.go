package srv

type Srv struct {
	ai *AI
}

type ApplyFunc func(*Srv)

func SetupSrvs(opts ...ApplyFunc) *Srv {
	s := &Srv{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func ApplyAI(cfg AIConfig) ApplyFunc {
	return func(s *Srv) {
		a, err := SetupAI(cfg)
		if err != nil {
			panic(err)
		}
		s.ai = a
	}
}

func (s *Srv) AI() *AI {
	return s.ai
}
