package session

import "sync"

// subscriber entrega los estados en orden desde su propia goroutine, así un
// callback lento no bloquea a la máquina ni a los demás suscriptores.
type subscriber struct {
	fn   func(AuthState)
	mu   sync.Mutex
	q    []AuthState
	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func (s *subscriber) enqueue(st AuthState) {
	s.mu.Lock()
	s.q = append(s.q, st)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run(stopped chan<- struct{}) {
	defer close(stopped)
	var (
		last    AuthState
		hasLast bool
	)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		s.mu.Lock()
		batch := s.q
		s.q = nil
		s.mu.Unlock()
		for _, st := range batch {
			// coalescing: nunca dos veces seguidas el mismo valor
			if hasLast && st == last {
				continue
			}
			select {
			case <-s.done:
				return
			default:
			}
			s.fn(st)
			last, hasLast = st, true
		}
	}
}

// Subscribe registra fn para cada valor distinto del estado, empezando por el
// actual. Las entregas son en orden y at-least-once por valor distinto.
// La función devuelta cancela la suscripción y espera a que el callback en
// curso termine; no llamarla desde dentro de fn.
func (m *Machine) Subscribe(fn func(AuthState)) (cancel func()) {
	s := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	stopped := make(chan struct{})

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = s
	s.enqueue(m.state)
	m.mu.Unlock()

	go s.run(stopped)

	return func() {
		s.once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(s.done)
			<-stopped
		})
	}
}

// Changes es la variante con channel de Subscribe. El channel tiene buffer
// y se cierra al cancelar; un lector que no drena frena sólo a sí mismo.
func (m *Machine) Changes(buffer int) (<-chan AuthState, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan AuthState, buffer)
	done := make(chan struct{})
	cancel := m.Subscribe(func(st AuthState) {
		select {
		case ch <- st:
		case <-done:
		}
	})
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			close(done)
			cancel()
			close(ch)
		})
	}
}
