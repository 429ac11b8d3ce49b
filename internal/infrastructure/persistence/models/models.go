package models

// All returns every model in migration order
func All() []any {
	return []any{
		&AccountModel{},
		&MeterModel{},
		&MeterReadingModel{},
		&TariffModel{},
		&TariffRateModel{},
		&BillModel{},
		&BillingDetailModel{},
		&PaymentModel{},
		&PaymentAllocationModel{},
		&CarryForwardModel{},
		&OutboxEntryModel{},
		&JobRunModel{},
	}
}
