package room

// Status é a máquina de estados da sala. Só anda para frente:
// Waiting → Active → Finished → Closed (Waiting e Active também podem
// ir direto para Closed no shutdown).
type Status int

const (
	// StatusWaiting aceita entradas; o jogo ainda não começou.
	StatusWaiting Status = iota
	// StatusActive tem jogo em andamento; entradas são recusadas.
	StatusActive
	// StatusFinished terminou o jogo; a sala segue legível durante a
	// janela de drenagem para o resultado chegar a todos.
	StatusFinished
	// StatusClosed é terminal. Nenhuma operação muda mais nada.
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusActive:
		return "active"
	case StatusFinished:
		return "finished"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}
