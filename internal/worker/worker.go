package worker

import (
	"encoding/json"
	"log"

	"campus-coin/internal/domain"
	"campus-coin/pkg/rabbitmq"
)

// Worker drains the ledger event stream and turns committed movements into
// owner notifications. Delivery is at-least-once; a notification repeated
// for the same transaction id is harmless.
type Worker struct {
	mq *rabbitmq.RabbitMQ
}

func NewWorker(mq *rabbitmq.RabbitMQ) *Worker {
	return &Worker{mq: mq}
}

func (w *Worker) Start() {
	msgs, err := w.mq.Consume()
	if err != nil {
		log.Fatalf("Failed to register consumer: %v", err)
	}

	go func() {
		for d := range msgs {
			var event domain.LedgerEvent
			if err := json.Unmarshal(d.Body, &event); err != nil {
				log.Printf("Error decoding ledger event: %v", err)
				d.Nack(false, false) // discard
				continue
			}

			w.notify(event)
			d.Ack(false)
		}
	}()
	log.Println("Worker started consuming ledger events")
}

func (w *Worker) notify(event domain.LedgerEvent) {
	verb := "credited"
	if event.Amount.IsNegative() {
		verb = "debited"
	}
	log.Printf("Notifying wallet %s: %s %s COIN (%s %s, ref %s)",
		event.WalletID, verb, event.Amount.Abs(), event.Type, event.ReferenceType, event.ReferenceID)
}
