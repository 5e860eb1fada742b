package app

import (
	"fmt"
	"strings"

	"servicebay/pkg/domain"
)

const reportSystemPrompt = "You are a senior vehicle service technician writing customer-facing service reports. " +
	"Write plain prose and lists only."

const reportInstructions = `Please generate a realistic and detailed service report that includes:
1. Services Performed (list 3-5 items specific to the service type)
2. Parts Replaced (if applicable, with realistic costs)
3. Labor Cost (reasonable estimate)
4. Vehicle Condition Assessment
5. Recommendations for future maintenance
6. Next Service Due Date (estimated)
7. Mechanic Notes

Format the report in a professional manner with clear sections and specific details. Make it realistic and relevant to the service type.

Important: Do NOT use tables do not use any kind of tabular or column format.`

func buildReportPrompt(appt domain.Appointment, serviceName string) string {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = "General Service"
	}
	var b strings.Builder
	b.WriteString("Generate a detailed vehicle service report for the following appointment:\n\n")
	fmt.Fprintf(&b, "Service Type: %s\n", serviceName)
	fmt.Fprintf(&b, "Vehicle Type: %s\n", appt.VehicleType)
	fmt.Fprintf(&b, "Vehicle Model: %s\n", appt.VehicleModel)
	fmt.Fprintf(&b, "Vehicle Plate: %s\n", appt.VehiclePlate)
	fmt.Fprintf(&b, "Service Date: %s\n", appt.ScheduledDate.Format("Jan 2, 2006"))
	if appt.Notes != "" {
		fmt.Fprintf(&b, "Customer Notes: %s\n", appt.Notes)
	}
	if appt.PickupRequired {
		fmt.Fprintf(&b, "Pickup Address: %s\n", appt.PickupAddress)
	}
	if appt.DropoffRequired {
		fmt.Fprintf(&b, "Drop-off Address: %s\n", appt.DropoffAddress)
	}
	b.WriteString("\n")
	b.WriteString(reportInstructions)
	return b.String()
}
