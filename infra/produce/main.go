package produce

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Produce struct {
	JobService *JobProduceService
}

func InitProduce(channel *amqp.Channel) (*Produce, error) {
	jobService, err := InitJobProduceService(channel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize job produce service: %w", err)
	}

	return &Produce{
		JobService: jobService,
	}, nil
}
