package lifecycle

import (
	"backoffice/internal/apperr"
	"backoffice/internal/model"
)

var workOrderTransitions = map[model.WorkOrderStatus][]model.WorkOrderStatus{
	model.WorkOrderPending:    {model.WorkOrderApproved, model.WorkOrderRejected},
	model.WorkOrderApproved:   {model.WorkOrderInProgress, model.WorkOrderCancelled},
	model.WorkOrderInProgress: {model.WorkOrderCompleted, model.WorkOrderCancelled},
	model.WorkOrderCompleted:  {model.WorkOrderInvoiced},
}

var invoiceTransitions = map[model.InvoiceStatus][]model.InvoiceStatus{
	model.InvoiceDraft:   {model.InvoiceSent},
	model.InvoiceSent:    {model.InvoicePaid, model.InvoiceOverdue},
	model.InvoiceOverdue: {model.InvoicePaid},
}

// TransitionWorkOrder checks a work order status change. Reaching invoiced is
// reserved for the conversion workflow.
func TransitionWorkOrder(from, to model.WorkOrderStatus, actor model.Actor) error {
	if to == model.WorkOrderInvoiced {
		if !actor.Has(model.RoleSystem) {
			return apperr.Unauthorized("work orders are invoiced through the conversion workflow only")
		}
	} else if !actor.IsBackOffice() {
		return apperr.Unauthorized("only staff can change a work order status")
	}
	for _, next := range workOrderTransitions[from] {
		if next == to {
			return nil
		}
	}
	return apperr.InvalidTransition("work order cannot move from %s to %s", from, to)
}

// WorkOrderEditable reports whether line items may still change.
func WorkOrderEditable(status model.WorkOrderStatus) error {
	switch status {
	case model.WorkOrderPending, model.WorkOrderApproved, model.WorkOrderInProgress:
		return nil
	}
	return apperr.ImmutableState("services cannot change once a work order is %s", status)
}

func TransitionInvoice(from, to model.InvoiceStatus, actor model.Actor) error {
	if !actor.IsBackOffice() {
		return apperr.Unauthorized("only staff can change an invoice status")
	}
	for _, next := range invoiceTransitions[from] {
		if next == to {
			return nil
		}
	}
	return apperr.InvalidTransition("invoice cannot move from %s to %s", from, to)
}
